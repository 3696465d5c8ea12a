// Package transforms holds leaf computations that sit in a data source's
// pipeline. Each transform is a single dataflow node.
package transforms

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/expr"
)

// Filter passes through the tuples that satisfy a predicate. It keeps the
// full upstream set so that a signal change can re-test every tuple and
// emit only the pass/fail transitions.
type Filter struct {
	*dataflow.Node

	source string
	test   expr.Expr
	graph  *dataflow.Graph
	log    *slog.Logger

	upstream map[string]*dataflow.Tuple
	order    []string
	passing  map[string]bool
}

// NewFilter parses test and appends a filter to ds's pipeline. The filter
// listens to every signal its predicate reads; referencing an unregistered
// signal is an error.
func NewFilter(ds *dataflow.DataSource, test string, log *slog.Logger) (*Filter, error) {
	e, err := expr.Parse(test)
	if err != nil {
		return nil, fmt.Errorf("filter on %s: %w", ds.Name(), err)
	}
	if log == nil {
		log = slog.Default()
	}
	g := ds.Input().Graph()
	f := &Filter{
		source:   ds.Name(),
		test:     e,
		graph:    g,
		log:      log,
		upstream: make(map[string]*dataflow.Tuple),
		passing:  make(map[string]bool),
	}
	f.Node = g.NewNode(ds.Name()+".filter", dataflow.EvaluatorFunc(f.evaluate))
	f.SetRouter(true)
	f.Dependency(dataflow.DepData, ds.Name())

	signals := expr.Signals(e)
	sources := make([]*dataflow.Signal, 0, len(signals))
	for _, name := range signals {
		s, ok := g.Signal(name)
		if !ok {
			return nil, fmt.Errorf("filter on %s: %w: %q", ds.Name(), dataflow.ErrUnknownSignal, name)
		}
		sources = append(sources, s)
	}
	if len(signals) > 0 {
		f.Dependency(dataflow.DepSignals, signals...)
	}
	ds.AddTransform(f.Node)
	for _, s := range sources {
		s.AddListener(f.Node)
	}
	return f, nil
}

// Expr returns the parsed predicate.
func (f *Filter) Expr() expr.Expr { return f.test }

// Passing reports whether the tuple with the given id currently passes.
func (f *Filter) Passing(id string) bool { return f.passing[id] }

func (f *Filter) evaluate(p *dataflow.Pulse) (*dataflow.Pulse, error) {
	out := p.Fork()
	out.Flag(dataflow.DepData, f.source)

	for _, it := range p.Rem {
		id := it.ItemID()
		if f.passing[id] {
			out.Rem = append(out.Rem, it)
		}
		f.forget(id)
	}
	for _, it := range p.Add {
		t, ok := it.(*dataflow.Tuple)
		if !ok {
			continue
		}
		f.remember(t)
		if err := f.retest(t, out, false); err != nil {
			return nil, err
		}
	}
	for _, it := range p.Mod {
		t, ok := it.(*dataflow.Tuple)
		if !ok {
			continue
		}
		f.remember(t)
		if err := f.retest(t, out, true); err != nil {
			return nil, err
		}
	}

	if p.Reflow {
		touched := make(map[string]bool, len(p.Add)+len(p.Mod))
		for _, it := range p.Add {
			touched[it.ItemID()] = true
		}
		for _, it := range p.Mod {
			touched[it.ItemID()] = true
		}
		for _, id := range f.order {
			if touched[id] {
				continue
			}
			if err := f.retest(f.upstream[id], out, false); err != nil {
				return nil, err
			}
		}
	}

	if out.Empty() && !p.Reflow {
		return dataflow.DoNotPropagate, nil
	}
	f.log.Debug("filter evaluated", "source", f.source, "stamp", p.Stamp,
		"add", len(out.Add), "mod", len(out.Mod), "rem", len(out.Rem))
	return out, nil
}

// retest evaluates t and records the transition in out. A passing tuple that
// keeps passing is only forwarded as a modification when modified is set.
func (f *Filter) retest(t *dataflow.Tuple, out *dataflow.Pulse, modified bool) error {
	ok, err := f.match(t)
	if err != nil {
		return err
	}
	was := f.passing[t.ID]
	switch {
	case ok && !was:
		f.passing[t.ID] = true
		out.Add = append(out.Add, t)
	case !ok && was:
		delete(f.passing, t.ID)
		out.Rem = append(out.Rem, t)
	case ok && modified:
		out.Mod = append(out.Mod, t)
	}
	return nil
}

func (f *Filter) match(t *dataflow.Tuple) (bool, error) {
	r := expr.ResolverFunc(func(path []string) (any, bool) {
		if len(path) < 2 {
			return nil, false
		}
		switch path[0] {
		case "datum":
			return expr.Lookup(t.Fields, path[1:])
		case "signal":
			v, ok := f.graph.SignalValue(path[1])
			if !ok || len(path) == 2 {
				return v, ok
			}
			m, isMap := v.(map[string]any)
			if !isMap {
				return nil, false
			}
			return expr.Lookup(m, path[2:])
		}
		return nil, false
	})
	ok, err := expr.Eval(f.test, r)
	if errors.Is(err, expr.ErrUnresolved) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("filter on %s, tuple %s: %w", f.source, t.ID, err)
	}
	return ok, nil
}

func (f *Filter) remember(t *dataflow.Tuple) {
	if _, ok := f.upstream[t.ID]; !ok {
		f.order = append(f.order, t.ID)
	}
	f.upstream[t.ID] = t
}

func (f *Filter) forget(id string) {
	if _, ok := f.upstream[id]; !ok {
		return
	}
	delete(f.upstream, id)
	delete(f.passing, id)
	for i, x := range f.order {
		if x == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}
