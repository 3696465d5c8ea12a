package dataflow

import (
	"context"
	"fmt"
)

// IDField is the datum field used as a tuple's id when present.
const IDField = "_id"

// Tuple is one data record.
type Tuple struct {
	ID     string
	Fields map[string]any
}

func (t *Tuple) ItemID() string { return t.ID }

// Get returns a field value.
func (t *Tuple) Get(field string) (any, bool) {
	v, ok := t.Fields[field]
	return v, ok
}

// DataSource is a named dataset with a pipeline of transform nodes:
//
//	input -> transforms... -> output
//
// Listeners attach to the output collector, which holds the current values.
type DataSource struct {
	name  string
	graph *Graph

	input    *Node
	pipeline []*Node
	output   *Collector

	raw     map[string]*Tuple
	nextSeq int
}

// NewDataSource registers an empty data source on g.
func (g *Graph) NewDataSource(name string) *DataSource {
	ds := &DataSource{
		name:  name,
		graph: g,
		raw:   make(map[string]*Tuple),
	}
	ds.input = g.NewNode(name+".input", nil)
	ds.output = NewCollector(g, name+".output")
	ds.input.AddListener(ds.output.Node)
	g.data[name] = ds
	return ds
}

func (ds *DataSource) Name() string         { return ds.name }
func (ds *DataSource) Input() *Node         { return ds.input }
func (ds *DataSource) Output() *Collector   { return ds.output }
func (ds *DataSource) Pipeline() []*Node    { return append([]*Node(nil), ds.pipeline...) }
func (ds *DataSource) Listen(l *Node)       { ds.output.AddListener(l) }
func (ds *DataSource) Unlisten(l *Node)     { ds.output.RemoveListener(l) }
func (ds *DataSource) Raw(id string) *Tuple { return ds.raw[id] }

// AddTransform appends a node to the pipeline, between the last transform
// and the output.
func (ds *DataSource) AddTransform(n *Node) {
	prev := ds.input
	if len(ds.pipeline) > 0 {
		prev = ds.pipeline[len(ds.pipeline)-1]
	}
	prev.RemoveListener(ds.output.Node)
	prev.AddListener(n)
	n.AddListener(ds.output.Node)
	ds.pipeline = append(ds.pipeline, n)
}

// Values returns the tuples currently at the end of the pipeline.
func (ds *DataSource) Values() []*Tuple {
	items := ds.output.Values()
	out := make([]*Tuple, 0, len(items))
	for _, it := range items {
		if t, ok := it.(*Tuple); ok {
			out = append(out, t)
		}
	}
	return out
}

// NewTuple wraps fields in a tuple, taking its id from IDField when set.
func (ds *DataSource) NewTuple(fields map[string]any) *Tuple {
	if fields == nil {
		fields = make(map[string]any)
	}
	if v, ok := fields[IDField]; ok && v != nil {
		return &Tuple{ID: fmt.Sprint(v), Fields: fields}
	}
	ds.nextSeq++
	return &Tuple{ID: fmt.Sprintf("%s:%d", ds.name, ds.nextSeq), Fields: fields}
}

// Insert adds tuples and propagates them. A tuple whose id is already present
// replaces the stored one's fields and travels as a modification with every
// field flagged.
func (ds *DataSource) Insert(ctx context.Context, values ...map[string]any) error {
	p := ds.pulse()
	for _, fields := range values {
		t := ds.NewTuple(fields)
		if old, ok := ds.raw[t.ID]; ok {
			old.Fields = t.Fields
			p.Mod = append(p.Mod, old)
			for k := range t.Fields {
				p.Flag(DepFields, k)
			}
			continue
		}
		ds.raw[t.ID] = t
		p.Add = append(p.Add, t)
	}
	return ds.propagate(ctx, p)
}

// Remove deletes tuples by id and propagates the removal. Unknown ids are an
// error and nothing is propagated.
func (ds *DataSource) Remove(ctx context.Context, ids ...string) error {
	p := ds.pulse()
	for _, id := range ids {
		t, ok := ds.raw[id]
		if !ok {
			return fmt.Errorf("data %s: %w: %q", ds.name, ErrUnknownTuple, id)
		}
		p.Rem = append(p.Rem, t)
	}
	for _, t := range p.Rem {
		delete(ds.raw, t.ItemID())
	}
	return ds.propagate(ctx, p)
}

// Update sets fields on an existing tuple and propagates the modification.
func (ds *DataSource) Update(ctx context.Context, id string, fields map[string]any) error {
	t, ok := ds.raw[id]
	if !ok {
		return fmt.Errorf("data %s: %w: %q", ds.name, ErrUnknownTuple, id)
	}
	for k, v := range fields {
		t.Fields[k] = v
	}
	p := ds.pulse()
	p.Mod = append(p.Mod, t)
	for k := range fields {
		p.Flag(DepFields, k)
	}
	return ds.propagate(ctx, p)
}

// Load inserts the initial values. Equivalent to Insert.
func (ds *DataSource) Load(ctx context.Context, values []map[string]any) error {
	return ds.Insert(ctx, values...)
}

func (ds *DataSource) pulse() *Pulse {
	return NewPulse(false).Flag(DepData, ds.name)
}

func (ds *DataSource) propagate(ctx context.Context, p *Pulse) error {
	if err := ds.graph.Propagate(ctx, p, ds.input); err != nil {
		return fmt.Errorf("data %s: %w", ds.name, err)
	}
	return nil
}

// DataNames returns the names of all registered data sources.
func (g *Graph) DataNames() []string {
	out := make([]string, 0, len(g.data))
	for name := range g.data {
		out = append(out, name)
	}
	return out
}
