package scene

import (
	"fmt"
	"math"
	"reflect"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
)

// scope is one slot of the model's scale arena. Each group item owns one.
// parent is an arena index, -1 at the root.
type scope struct {
	parent int
	scales map[string]*Scale
	live   bool
}

func (m *Model) newScope(parent int) int {
	m.scopes = append(m.scopes, &scope{parent: parent, scales: make(map[string]*Scale), live: true})
	return len(m.scopes) - 1
}

// releaseScope disconnects the scope's scale nodes and invalidates the slot.
func (m *Model) releaseScope(i int) {
	if i < 0 || i >= len(m.scopes) || !m.scopes[i].live {
		return
	}
	s := m.scopes[i]
	for _, sc := range s.scales {
		sc.disconnect()
	}
	s.scales = nil
	s.live = false
}

// Scale looks a scale up by name starting at scope i and walking outward
// through the enclosing groups. It returns (nil, false) once the chain is
// exhausted.
func (m *Model) Scale(i int, name string) (*Scale, bool) {
	for i >= 0 && i < len(m.scopes) {
		s := m.scopes[i]
		if !s.live {
			return nil, false
		}
		if sc, ok := s.scales[name]; ok {
			return sc, true
		}
		i = s.parent
	}
	return nil, false
}

// Scale maps domain values to range values. It is a dataflow node that
// listens to its domain data and range signal and flags its name in the
// Scales channel whenever its mapping changes.
type Scale struct {
	*dataflow.Node

	def   spec.Scale
	model *Model

	domain []any
	lo, hi float64
	rng    [2]float64

	data   *dataflow.DataSource
	signal *dataflow.Signal
}

func (m *Model) newScale(def spec.Scale) (*Scale, error) {
	s := &Scale{def: def, model: m}
	s.Node = m.graph.NewNode("scale:"+def.Name, dataflow.EvaluatorFunc(s.evaluate))
	s.SetRouter(true)
	if def.Domain.Data != "" {
		ds, ok := m.graph.Data(def.Domain.Data)
		if !ok {
			return nil, fmt.Errorf("scale %s: unknown data %q", def.Name, def.Domain.Data)
		}
		s.data = ds
		s.Dependency(dataflow.DepFields, def.Domain.Field)
		ds.Listen(s.Node)
	}
	if def.Range.Signal != "" {
		sig, ok := m.graph.Signal(def.Range.Signal)
		if !ok {
			return nil, fmt.Errorf("scale %s: %w: %q", def.Name, dataflow.ErrUnknownSignal, def.Range.Signal)
		}
		s.signal = sig
		s.Dependency(dataflow.DepSignals, sig.Name())
		sig.AddListener(s.Node)
	}
	s.update()
	return s, nil
}

func (s *Scale) ScaleName() string { return s.def.Name }
func (s *Scale) Type() string      { return s.def.Type }
func (s *Scale) Range() [2]float64 { return s.rng }

// Domain returns the ordinal domain, or [min, max] for a linear scale.
func (s *Scale) Domain() []any {
	if s.def.Type == spec.ScaleLinear {
		return []any{s.lo, s.hi}
	}
	return append([]any(nil), s.domain...)
}

// Map returns the range value for v. ok is false when v is outside an
// ordinal domain or not numeric for a linear scale.
func (s *Scale) Map(v any) (float64, bool) {
	if s.def.Type == spec.ScaleOrdinal {
		for i, d := range s.domain {
			if reflect.DeepEqual(d, v) || fmt.Sprint(d) == fmt.Sprint(v) {
				step := s.step()
				return s.rng[0] + float64(i)*step + step*s.def.Padding/2, true
			}
		}
		return 0, false
	}
	x, ok := number(v)
	if !ok {
		return 0, false
	}
	if s.hi == s.lo {
		return s.rng[0], true
	}
	return s.rng[0] + (x-s.lo)/(s.hi-s.lo)*(s.rng[1]-s.rng[0]), true
}

// Bandwidth is the width of one ordinal band, 0 for linear scales.
func (s *Scale) Bandwidth() float64 {
	if s.def.Type != spec.ScaleOrdinal {
		return 0
	}
	return s.step() * (1 - s.def.Padding)
}

// Ticks returns n evenly spaced domain values, or the ordinal domain.
func (s *Scale) Ticks(n int) []any {
	if s.def.Type == spec.ScaleOrdinal {
		return s.Domain()
	}
	if n < 2 || s.hi == s.lo {
		return []any{s.lo}
	}
	out := make([]any, n)
	step := (s.hi - s.lo) / float64(n-1)
	for i := range out {
		out[i] = s.lo + float64(i)*step
	}
	return out
}

func (s *Scale) step() float64 {
	if len(s.domain) == 0 {
		return 0
	}
	return (s.rng[1] - s.rng[0]) / float64(len(s.domain))
}

func (s *Scale) evaluate(p *dataflow.Pulse) (*dataflow.Pulse, error) {
	if !s.update() {
		return dataflow.DoNotPropagate, nil
	}
	s.model.log.Debug("scale changed", "scale", s.def.Name, "stamp", p.Stamp, "domain", s.Domain(), "range", s.rng)
	return p.Fork().Flag(dataflow.DepScales, s.def.Name), nil
}

// update recomputes domain and range and reports whether either changed.
func (s *Scale) update() bool {
	values := s.def.Domain.Values
	if s.data != nil {
		values = values[:0:0]
		for _, t := range s.data.Values() {
			if v, ok := t.Get(s.def.Domain.Field); ok {
				values = append(values, v)
			}
		}
	}

	var (
		domain []any
		lo, hi float64
	)
	if s.def.Type == spec.ScaleOrdinal {
		seen := make(map[string]bool, len(values))
		for _, v := range values {
			k := fmt.Sprint(v)
			if !seen[k] {
				seen[k] = true
				domain = append(domain, v)
			}
		}
	} else {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, v := range values {
			if x, ok := number(v); ok {
				lo, hi = math.Min(lo, x), math.Max(hi, x)
			}
		}
		if lo > hi {
			lo, hi = 0, 0
		}
		if s.def.Zero {
			lo, hi = math.Min(lo, 0), math.Max(hi, 0)
		}
	}

	rng := s.rng
	if s.signal != nil {
		if x, ok := number(s.signal.Value()); ok {
			rng = [2]float64{0, x}
		}
	} else if len(s.def.Range.Values) == 2 {
		rng = [2]float64{s.def.Range.Values[0], s.def.Range.Values[1]}
	}

	changed := lo != s.lo || hi != s.hi || rng != s.rng || !reflect.DeepEqual(domain, s.domain)
	s.domain, s.lo, s.hi, s.rng = domain, lo, hi, rng
	return changed
}

func (s *Scale) disconnect() {
	if s.data != nil {
		s.data.Unlisten(s.Node)
	}
	if s.signal != nil {
		s.signal.RemoveListener(s.Node)
	}
	s.Disconnect()
}
