package scene

import (
	"fmt"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
)

// child records one builder rendering a mark or axis of a group instance.
type child struct {
	builder *Builder
	from    string
	kind    Kind
	scale   string
}

type groupPayload struct {
	scaler    *dataflow.Node
	recursor  *dataflow.Node
	collector *dataflow.Collector

	// group item id -> children, in build order
	children map[string][]child
}

func newGroupPayload(b *Builder) *groupPayload {
	g := b.model.graph
	gp := &groupPayload{children: make(map[string][]child)}
	gp.scaler = g.NewNode(b.path+".scaler", dataflow.EvaluatorFunc(b.scaleGroups))
	gp.recursor = g.NewNode(b.path+".recursor", dataflow.EvaluatorFunc(b.recurse))
	gp.recursor.SetRouter(true)
	gp.collector = dataflow.NewCollector(g, b.path+".collector")
	return gp
}

func (b *Builder) Recursor() *dataflow.Node {
	if b.grp == nil {
		return nil
	}
	return b.grp.recursor
}

func (b *Builder) Collector() *dataflow.Collector {
	if b.grp == nil {
		return nil
	}
	return b.grp.collector
}

// Child returns the mark builder named name under the group instance
// groupID, or nil.
func (b *Builder) Child(name, groupID string) *Builder {
	if b.grp == nil {
		return nil
	}
	for _, c := range b.grp.children[groupID] {
		if c.kind != KindAxis && c.builder.name == name {
			return c.builder
		}
	}
	return nil
}

// Children returns every builder registered for the group instance groupID,
// marks first, then axes.
func (b *Builder) Children(groupID string) []*Builder {
	if b.grp == nil {
		return nil
	}
	out := make([]*Builder, 0, len(b.grp.children[groupID]))
	for _, c := range b.grp.children[groupID] {
		out = append(out, c.builder)
	}
	return out
}

// Registered reports whether the group instance has a children entry.
func (b *Builder) Registered(groupID string) bool {
	if b.grp == nil {
		return false
	}
	_, ok := b.grp.children[groupID]
	return ok
}

// Item returns the item built for the given datum id, or nil.
func (b *Builder) Item(datumID string) *Item { return b.items[datumID] }

// scaleGroups gives every new group instance its own scope and scales.
// Scales are computed eagerly so that children built later in the same pass
// resolve them.
func (b *Builder) scaleGroups(p *dataflow.Pulse) (*dataflow.Pulse, error) {
	if b.disconnected {
		return dataflow.DoNotPropagate, nil
	}
	for _, x := range b.own(p.Add) {
		g := x.(*Item)
		g.scope = b.model.newScope(b.scope)
		sc := b.model.scopes[g.scope]
		for _, def := range b.def.Scales {
			s, err := b.model.newScale(def)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", g.id, err)
			}
			sc.scales[def.Name] = s
		}
	}
	return p, nil
}

// recurse instantiates and destroys child builders as group instances
// come and go. Children are attached as recursor listeners during this
// evaluation so that the fan-out of the current pulse reaches them.
func (b *Builder) recurse(p *dataflow.Pulse) (*dataflow.Pulse, error) {
	if b.disconnected {
		return dataflow.DoNotPropagate, nil
	}
	for _, x := range b.own(p.Rem) {
		b.teardown(x.(*Item))
	}
	for _, x := range b.own(p.Add) {
		if err := b.buildChildren(x.(*Item)); err != nil {
			return nil, err
		}
	}
	for _, x := range b.own(p.Mod) {
		b.refreshChildren(x.(*Item))
	}

	out := p.Clone()
	out.Flag(dataflow.DepData, b.groupKey())
	return out, nil
}

func (b *Builder) buildChildren(g *Item) error {
	m := b.model
	m.log.Debug("building group", "group", g.id)
	rec := b.grp.recursor
	b.grp.children[g.id] = nil

	for i := range b.def.Marks {
		def := &b.def.Marks[i]
		kind := KindMark
		if def.IsGroup() {
			kind = KindGroup
		}
		name := def.Name
		if name == "" {
			name = fmt.Sprintf("mark%d", i)
		}
		c, err := m.newBuilder(kind, name, def, b, g, -1)
		if err != nil {
			return err
		}
		// Marks with a data source keep this edge only until the group's
		// first modification; the rest inherit the group datum through it.
		rec.AddListener(c.encoder)
		from := ""
		if def.From != nil {
			from = def.From.Data
		}
		b.grp.children[g.id] = append(b.grp.children[g.id], child{builder: c, from: from, kind: kind})
	}

	g.Axes = m.axisParser(m, b.def.Axes, g.Axes, g)
	for i, a := range g.Axes {
		c, err := m.newBuilder(KindAxis, fmt.Sprintf("axis%d", i), nil, b, g, i)
		if err != nil {
			return err
		}
		rec.AddListener(c.encoder)
		b.grp.children[g.id] = append(b.grp.children[g.id], child{builder: c, kind: KindAxis, scale: a.Spec.Scale})
	}
	return nil
}

func (b *Builder) refreshChildren(g *Item) {
	m := b.model
	for _, c := range b.grp.children[g.id] {
		if c.kind == KindAxis || c.from == "" {
			continue
		}
		if _, ok := m.graph.Data(c.from); ok {
			b.grp.recursor.RemoveListener(c.builder.encoder)
		}
	}
	g.Axes = m.axisParser(m, b.def.Axes, g.Axes, g)
	for _, a := range g.Axes {
		a.Def()
	}
}

// teardown disconnects every child of a group instance, deletes its
// registry entry and releases its scope. It runs before the group item is
// discarded downstream.
func (b *Builder) teardown(g *Item) {
	for _, c := range b.grp.children[g.id] {
		b.grp.recursor.RemoveListener(c.builder.encoder)
		c.builder.disconnect()
	}
	delete(b.grp.children, g.id)
	b.model.releaseScope(g.scope)
	g.scope = -1
	g.Marks = nil
	g.Axes = nil
}

// boundGroup recomputes the bounds of every group instance touched by p,
// own encoding united with its children's marks, and forwards the group
// items to the parent's collector.
func (b *Builder) boundGroup(p *dataflow.Pulse) (*dataflow.Pulse, error) {
	if b.disconnected {
		return dataflow.DoNotPropagate, nil
	}
	out := p.Fork()
	out.Add = b.own(p.Add)
	out.Rem = b.own(p.Rem)

	skip := make(map[*Item]bool, len(out.Add))
	for _, x := range out.Add {
		skip[x.(*Item)] = true
	}
	affected := make(map[*Item]bool)
	for _, set := range [][]dataflow.Item{p.Add, p.Mod, p.Rem} {
		for _, x := range set {
			it, ok := x.(*Item)
			if !ok {
				continue
			}
			if it.mark == b.mark {
				affected[it] = true
			} else if g := it.Group(); g != nil && g.mark == b.mark {
				affected[g] = true
			}
		}
	}

	b.mark.Bounds = Bounds{}
	for _, g := range b.mark.Items {
		g.Bounds = groupBounds(g)
		b.mark.Bounds = b.mark.Bounds.Union(g.Bounds)
		if (affected[g] || p.Reflow) && !skip[g] {
			out.Mod = append(out.Mod, g)
		}
	}

	if out.Empty() && !p.Reflow {
		return dataflow.DoNotPropagate, nil
	}
	return out, nil
}

func groupBounds(g *Item) Bounds {
	bounds := itemBounds(g)
	x, _ := g.Number("x")
	y, _ := g.Number("y")
	for _, m := range g.Marks {
		bounds = bounds.Union(m.Bounds.Translate(x, y))
	}
	return bounds
}
