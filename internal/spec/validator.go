package spec

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/vizflow/internal/expr"
)

var markTypes = map[string]bool{
	MarkRect: true, MarkSymbol: true, MarkRule: true, MarkText: true, MarkGroup: true,
}

var orients = map[string]bool{"bottom": true, "top": true, "left": true, "right": true}

// Validate checks the document for:
//   - Required fields and known type names
//   - Duplicate signal, data, scale and sibling mark names
//   - References to undeclared signals, data and scales (scales resolve
//     through the enclosing groups)
//   - Filter predicates that do not parse
func Validate(s *Spec) error {
	if s.Version == "" {
		return fmt.Errorf("spec: version is required")
	}
	v := &validator{
		signals: make(map[string]bool),
		data:    make(map[string]bool),
	}

	for i, sig := range s.Signals {
		switch {
		case sig.Name == "":
			v.errf("signals[%d]: name is required", i)
		case v.signals[sig.Name]:
			v.errf("duplicate signal %q", sig.Name)
		}
		v.signals[sig.Name] = true
	}

	// Data may reference signals, so signals are collected first.
	for i, d := range s.Data {
		switch {
		case d.Name == "":
			v.errf("data[%d]: name is required", i)
			continue
		case v.data[d.Name]:
			v.errf("duplicate data %q", d.Name)
		}
		v.data[d.Name] = true
		for j, tr := range d.Transform {
			loc := fmt.Sprintf("data %s.transform[%d]", d.Name, j)
			if tr.Type != "filter" {
				v.errf("%s: unknown transform type %q", loc, tr.Type)
				continue
			}
			e, err := expr.Parse(tr.Test)
			if err != nil {
				v.errf("%s: %v", loc, err)
				continue
			}
			for _, name := range expr.Signals(e) {
				if !v.signals[name] {
					v.errf("%s: unknown signal %q", loc, name)
				}
			}
		}
	}

	v.group("root", nil, s.Scales, s.Axes, s.Marks)

	if len(v.errs) > 0 {
		return fmt.Errorf("spec validation errors:\n  - %s", strings.Join(v.errs, "\n  - "))
	}
	return nil
}

type validator struct {
	signals map[string]bool
	data    map[string]bool
	errs    []string
}

func (v *validator) errf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

// scope is the chain of scale names visible from a group.
type scope struct {
	parent *scope
	scales map[string]bool
}

func (s *scope) has(name string) bool {
	for ; s != nil; s = s.parent {
		if s.scales[name] {
			return true
		}
	}
	return false
}

func (v *validator) group(loc string, parent *scope, scales []Scale, axes []Axis, marks []Mark) {
	sc := &scope{parent: parent, scales: make(map[string]bool)}
	for i, s := range scales {
		sloc := fmt.Sprintf("%s.scales[%d]", loc, i)
		if s.Name == "" {
			v.errf("%s: name is required", sloc)
			continue
		}
		if sc.scales[s.Name] {
			v.errf("%s: duplicate scale %q", loc, s.Name)
		}
		sc.scales[s.Name] = true
		if s.Type != ScaleLinear && s.Type != ScaleOrdinal {
			v.errf("scale %s: unknown type %q", s.Name, s.Type)
		}
		if s.Domain.Data != "" {
			if !v.data[s.Domain.Data] {
				v.errf("scale %s: unknown data %q", s.Name, s.Domain.Data)
			}
			if s.Domain.Field == "" {
				v.errf("scale %s: domain.field is required with domain.data", s.Name)
			}
		} else if len(s.Domain.Values) == 0 {
			v.errf("scale %s: domain needs values or data", s.Name)
		}
		if s.Range.Signal != "" && !v.signals[s.Range.Signal] {
			v.errf("scale %s: unknown range signal %q", s.Name, s.Range.Signal)
		}
		if s.Range.Signal == "" && len(s.Range.Values) != 2 {
			v.errf("scale %s: range needs two values or a signal", s.Name)
		}
	}

	for i, a := range axes {
		aloc := fmt.Sprintf("%s.axes[%d]", loc, i)
		if !sc.has(a.Scale) {
			v.errf("%s: unknown scale %q", aloc, a.Scale)
		}
		if !orients[a.Orient] {
			v.errf("%s: unknown orient %q", aloc, a.Orient)
		}
	}

	names := make(map[string]bool)
	for i := range marks {
		m := &marks[i]
		mloc := fmt.Sprintf("%s.marks[%d]", loc, i)
		if m.Name != "" {
			if names[m.Name] {
				v.errf("%s: duplicate mark %q", loc, m.Name)
			}
			names[m.Name] = true
			mloc = fmt.Sprintf("%s/%s", loc, m.Name)
		}
		if !markTypes[m.Type] {
			v.errf("%s: unknown mark type %q", mloc, m.Type)
		}
		if m.From != nil && !v.data[m.From.Data] {
			v.errf("%s: unknown data %q", mloc, m.From.Data)
		}
		if !m.IsGroup() && (len(m.Scales) > 0 || len(m.Axes) > 0 || len(m.Marks) > 0) {
			v.errf("%s: only group marks may declare scales, axes or marks", mloc)
		}
		// A group's encoding is evaluated in the parent scope.
		for prop, ref := range m.Encode {
			v.valueRef(fmt.Sprintf("%s.encode.%s", mloc, prop), sc, ref)
		}
		if m.IsGroup() {
			v.group(mloc, sc, m.Scales, m.Axes, m.Marks)
		}
	}
}

func (v *validator) valueRef(loc string, sc *scope, ref ValueRef) {
	set := 0
	if ref.Value != nil {
		set++
	}
	if ref.Field != "" {
		set++
	}
	if ref.FieldSignal != "" {
		set++
	}
	if ref.Signal != "" {
		set++
	}
	if set > 1 {
		v.errf("%s: only one of value/field/field_signal/signal may be set", loc)
	}
	if set == 0 && ref.Scale == "" {
		v.errf("%s: one of value/field/field_signal/signal/scale must be set", loc)
	}
	for _, name := range []string{ref.Signal, ref.FieldSignal} {
		if name != "" && !v.signals[name] {
			v.errf("%s: unknown signal %q", loc, name)
		}
	}
	if ref.Scale != "" && !sc.has(ref.Scale) {
		v.errf("%s: unknown scale %q", loc, ref.Scale)
	}
}
