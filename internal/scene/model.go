// Package scene compiles a visualization spec into a dataflow graph of
// builders that maintain the scene tree.
//
// The root group builder is fed once at compile time. Group builders grow
// and shrink the graph from inside propagation passes: a group instance
// appearing builds child builders for its marks and axes, a group instance
// disappearing disconnects them. Scales live in a per-group-instance scope
// arena and resolve outward through enclosing groups.
package scene

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
	"github.com/gyaneshwarpardhi/vizflow/internal/transforms"
)

// Model is one compiled spec: its graph, data sources, signals and the
// builder tree.
type Model struct {
	def        *spec.Spec
	graph      *dataflow.Graph
	log        *slog.Logger
	axisParser AxisParser
	transforms *transforms.Registry
	graphOpts  []dataflow.Option

	scopes []*scope
	head   *dataflow.Node
	root   *Builder
}

// Option configures Compile.
type Option func(*Model)

// WithLogger sets the logger passed to the graph, transforms and builders.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithAxisParser replaces ParseAxes.
func WithAxisParser(p AxisParser) Option {
	return func(m *Model) { m.axisParser = p }
}

// WithTransforms replaces the built-in transform registry.
func WithTransforms(r *transforms.Registry) Option {
	return func(m *Model) { m.transforms = r }
}

// WithGraphOptions passes options to the graph after the ones derived from
// the spec's engine settings.
func WithGraphOptions(opts ...dataflow.Option) Option {
	return func(m *Model) { m.graphOpts = append(m.graphOpts, opts...) }
}

// Compile builds the graph for def, loads the inline data and propagates the
// initial pulse that builds the scene.
func Compile(ctx context.Context, def *spec.Spec, opts ...Option) (*Model, error) {
	m := &Model{
		def:        def,
		log:        slog.Default(),
		axisParser: ParseAxes,
		transforms: transforms.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	gopts := []dataflow.Option{
		dataflow.WithHardSkips(!def.Engine.DisableHardSkips),
		dataflow.WithSoftSkips(!def.Engine.DisableSoftSkips),
		dataflow.WithLogger(m.log),
	}
	m.graph = dataflow.New(append(gopts, m.graphOpts...)...)

	for _, s := range def.Signals {
		m.graph.NewSignal(s.Name, s.Value)
	}
	for _, d := range def.Data {
		ds := m.graph.NewDataSource(d.Name)
		if err := m.transforms.Build(ds, d.Transform, m.log); err != nil {
			return nil, err
		}
		if len(d.Values) > 0 {
			if err := ds.Load(ctx, d.Values); err != nil {
				return nil, err
			}
		}
	}

	root := &spec.Mark{
		Name:   "root",
		Type:   spec.MarkGroup,
		Scales: def.Scales,
		Axes:   def.Axes,
		Marks:  def.Marks,
		Encode: map[string]spec.ValueRef{
			"x":      {Value: 0.0},
			"y":      {Value: 0.0},
			"width":  {Value: def.Width},
			"height": {Value: def.Height},
		},
	}
	var err error
	if m.root, err = m.newBuilder(KindGroup, "root", root, nil, nil, -1); err != nil {
		return nil, err
	}
	m.head = m.graph.NewNode("head", nil)
	m.head.AddListener(m.root.encoder)
	if err := m.graph.Propagate(ctx, dataflow.NewPulse(false), m.head); err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}
	m.log.Debug("scene compiled", "spec", def.Name, "stamp", m.graph.Stamp(), "evaluated", m.graph.LastPass().Evaluated)
	return m, nil
}

func (m *Model) Spec() *spec.Spec       { return m.def }
func (m *Model) Graph() *dataflow.Graph { return m.graph }
func (m *Model) Root() *Builder         { return m.root }
func (m *Model) Logger() *slog.Logger   { return m.log }

// RootItem returns the root group instance.
func (m *Model) RootItem() *Item {
	if m.root == nil || len(m.root.mark.Items) == 0 {
		return nil
	}
	return m.root.mark.Items[0]
}

// Snapshot copies the current scene tree.
func (m *Model) Snapshot() ItemSnapshot {
	root := m.RootItem()
	if root == nil {
		return ItemSnapshot{}
	}
	return root.Snapshot()
}

// LiveScopes returns the number of scale scopes not torn down.
func (m *Model) LiveScopes() int {
	n := 0
	for _, s := range m.scopes {
		if s.live {
			n++
		}
	}
	return n
}

// Render hands the converged scene to r. Call it only between passes.
func (m *Model) Render(r Renderer) {
	if r == nil {
		return
	}
	if root := m.RootItem(); root != nil {
		r.Render(root)
	}
}
