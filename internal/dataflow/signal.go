package dataflow

import (
	"context"
	"fmt"
)

// Signal is a named, externally settable value. Firing a signal propagates a
// reflow pulse flagged with its name.
type Signal struct {
	*Node
	value any
}

// NewSignal registers a signal on g. Registering a name twice returns the
// existing signal with its value replaced.
func (g *Graph) NewSignal(name string, init any) *Signal {
	if s, ok := g.signals[name]; ok {
		s.value = init
		return s
	}
	s := &Signal{value: init}
	s.Node = g.NewNode(name, nil)
	g.signals[name] = s
	return s
}

func (s *Signal) Value() any { return s.value }

// Set updates the value without propagating.
func (s *Signal) Set(v any) *Signal {
	s.value = v
	return s
}

// Fire propagates the current value.
func (s *Signal) Fire(ctx context.Context) error {
	p := NewPulse(true).Flag(DepSignals, s.Name())
	if err := s.graph.Propagate(ctx, p, s.Node); err != nil {
		return fmt.Errorf("signal %s: %w", s.Name(), err)
	}
	return nil
}

// SignalValue returns the value of a registered signal.
func (g *Graph) SignalValue(name string) (any, bool) {
	s, ok := g.signals[name]
	if !ok {
		return nil, false
	}
	return s.value, true
}

// Signals returns the names of all registered signals.
func (g *Graph) Signals() []string {
	out := make([]string, 0, len(g.signals))
	for name := range g.signals {
		out = append(out, name)
	}
	return out
}
