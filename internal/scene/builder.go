package scene

import (
	"fmt"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
)

// Kind distinguishes the builder variants.
type Kind int

const (
	KindMark Kind = iota
	KindGroup
	KindAxis
)

func (k Kind) String() string {
	switch k {
	case KindMark:
		return "mark"
	case KindGroup:
		return "group"
	case KindAxis:
		return "axis"
	}
	return "unknown"
}

// Builder maintains the items of one mark for one group instance. Every
// variant runs an encoder feeding a bounder; the bounder feeds the parent
// group's collector. Group builders insert a scaler, a recursor and a
// collector between the two:
//
//	mark:  encoder -> bounder
//	group: encoder -> scaler -> recursor -> collector -> bounder
type Builder struct {
	kind   Kind
	name   string
	path   string
	model  *Model
	def    *spec.Mark
	parent *Builder
	group  *Item
	scope  int

	// Axis builders render group.Axes[axisIndex].
	axisIndex int
	axisScale string

	mark  *Mark
	items map[string]*Item

	from    *dataflow.DataSource
	signals []*dataflow.Signal
	scales  []*Scale

	encoder *dataflow.Node
	bounder *dataflow.Node

	built        bool
	disconnected bool

	grp *groupPayload
}

// newBuilder creates a builder of the given kind under group. Axis builders
// pass the index of their axis in group.Axes and a nil def.
func (m *Model) newBuilder(kind Kind, name string, def *spec.Mark, parent *Builder, group *Item, axis int) (*Builder, error) {
	b := &Builder{
		kind:      kind,
		name:      name,
		path:      name,
		model:     m,
		def:       def,
		parent:    parent,
		group:     group,
		scope:     -1,
		axisIndex: axis,
		items:     make(map[string]*Item),
	}
	if group != nil {
		b.scope = group.scope
		b.path = group.id + "/" + name
	}
	if kind == KindAxis {
		b.axisScale = group.Axes[axis].Spec.Scale
	}
	typ := spec.MarkGroup
	if def != nil {
		typ = def.Type
	}
	if kind == KindAxis {
		typ = "axis"
	}
	b.mark = &Mark{Name: name, Type: typ, Group: group, builder: b}
	if group != nil {
		group.Marks = append(group.Marks, b.mark)
	}

	g := m.graph
	b.encoder = g.NewNode(b.path+".encoder", dataflow.EvaluatorFunc(b.evaluate))
	b.encoder.SetRouter(true).SetMerging(true)
	if err := b.connect(); err != nil {
		return nil, err
	}

	if kind == KindGroup {
		b.grp = newGroupPayload(b)
		b.encoder.AddListener(b.grp.scaler)
		b.grp.scaler.AddListener(b.grp.recursor)
		b.grp.recursor.AddListener(b.grp.collector.Node)
		b.bounder = g.NewNode(b.path+".bounder", dataflow.EvaluatorFunc(b.boundGroup))
		b.grp.collector.AddListener(b.bounder)
	} else {
		b.bounder = g.NewNode(b.path+".bounder", dataflow.EvaluatorFunc(b.bound))
		b.encoder.AddListener(b.bounder)
	}
	if parent != nil {
		b.bounder.AddListener(parent.grp.collector.Node)
	}
	return b, nil
}

// connect wires the encoder's permanent inputs and declares its
// dependencies.
func (b *Builder) connect() error {
	m := b.model
	// Builders without a data source follow their group instance. Builders
	// with one only need the recursor for the initial pulse, which always
	// carries adds.
	if b.parent != nil && (b.def == nil || b.def.From == nil) {
		b.encoder.Dependency(dataflow.DepData, b.parent.groupKey())
	}

	var encode map[string]spec.ValueRef
	if b.def != nil {
		encode = b.def.Encode
		if b.def.From != nil {
			ds, ok := m.graph.Data(b.def.From.Data)
			if !ok {
				return fmt.Errorf("mark %s: unknown data %q", b.path, b.def.From.Data)
			}
			b.from = ds
			ds.Listen(b.encoder)
			// Adds and removes reach the encoder as a router; modifications
			// only when a field it reads changed.
			for _, f := range fieldsOf(encode) {
				b.encoder.Dependency(dataflow.DepFields, f)
			}
			if len(fieldSignalsOf(encode)) > 0 {
				b.encoder.Dependency(dataflow.DepData, ds.Name())
			}
			// A group instance is modified whenever a field its inheriting
			// descendants read changes, so they re-encode.
			if b.kind == KindGroup {
				fields, dynamic := inheritedFields(b.def.Marks)
				for _, f := range fields {
					b.encoder.Dependency(dataflow.DepFields, f)
				}
				if dynamic {
					b.encoder.Dependency(dataflow.DepData, ds.Name())
				}
			}
		}
	}

	for _, name := range signalsOf(encode) {
		s, ok := m.graph.Signal(name)
		if !ok {
			return fmt.Errorf("mark %s: %w: %q", b.path, dataflow.ErrUnknownSignal, name)
		}
		b.signals = append(b.signals, s)
		b.encoder.Dependency(dataflow.DepSignals, name)
		s.AddListener(b.encoder)
	}

	scales := scalesOf(encode)
	if b.kind == KindAxis {
		scales = []string{b.axisScale}
	}
	for _, name := range scales {
		b.encoder.Dependency(dataflow.DepScales, name)
		sc, ok := m.Scale(b.scope, name)
		if !ok {
			m.log.Debug("scale not resolved", "mark", b.path, "scale", name)
			continue
		}
		b.scales = append(b.scales, sc)
		sc.AddListener(b.encoder)
	}
	return nil
}

func (b *Builder) Kind() Kind              { return b.kind }
func (b *Builder) Name() string            { return b.name }
func (b *Builder) Path() string            { return b.path }
func (b *Builder) Mark() *Mark             { return b.mark }
func (b *Builder) Encoder() *dataflow.Node { return b.encoder }
func (b *Builder) Bounder() *dataflow.Node { return b.bounder }
func (b *Builder) Disconnected() bool      { return b.disconnected }

// Scale resolves a scale from the builder's enclosing group outward.
func (b *Builder) Scale(name string) (*Scale, bool) {
	return b.model.Scale(b.scope, name)
}

// groupKey is the data flag a group's recursor raises for its children.
func (b *Builder) groupKey() string { return "group:" + b.path }

func (b *Builder) evaluate(p *dataflow.Pulse) (*dataflow.Pulse, error) {
	if b.disconnected {
		return dataflow.DoNotPropagate, nil
	}
	out := p.Fork()
	if !b.built {
		b.built = true
		b.model.log.Debug("building mark", "mark", b.path, "kind", b.kind, "stamp", p.Stamp)
		if b.kind == KindAxis {
			b.reconcileTicks(out)
		} else {
			b.buildItems(out)
		}
		return out, nil
	}

	touched := make(map[string]bool)
	if b.from != nil && p.Changed(dataflow.DepData, b.from.Name()) {
		for _, x := range p.Rem {
			if t, ok := x.(*dataflow.Tuple); ok {
				if it, ok := b.items[t.ID]; ok {
					b.removeItem(it)
					out.Rem = append(out.Rem, it)
				}
			}
		}
		for _, x := range p.Add {
			if t, ok := x.(*dataflow.Tuple); ok {
				if _, ok := b.items[t.ID]; !ok {
					it := b.newItem(t)
					touched[t.ID] = true
					out.Add = append(out.Add, it)
				}
			}
		}
		for _, x := range p.Mod {
			if t, ok := x.(*dataflow.Tuple); ok && !touched[t.ID] {
				if it, ok := b.items[t.ID]; ok {
					b.encodeItem(it, b.def.Encode)
					touched[t.ID] = true
					out.Mod = append(out.Mod, it)
				}
			}
		}
	}

	if p.Reflow || b.flagged(p) || b.groupModified(p) {
		if b.kind == KindAxis {
			b.reconcileTicks(out)
		} else {
			for _, it := range b.mark.Items {
				if touched[it.Datum.ID] {
					continue
				}
				b.encodeItem(it, b.def.Encode)
				out.Mod = append(out.Mod, it)
			}
		}
	}

	if out.Empty() && !p.Reflow {
		return dataflow.DoNotPropagate, nil
	}
	return out, nil
}

// flagged reports whether a signal or scale the encoder reads changed.
func (b *Builder) flagged(p *dataflow.Pulse) bool {
	for _, s := range b.signals {
		if p.Changed(dataflow.DepSignals, s.Name()) {
			return true
		}
	}
	for _, name := range b.encoder.Deps(dataflow.DepScales) {
		if p.Changed(dataflow.DepScales, name) {
			return true
		}
	}
	return false
}

// groupModified reports whether p modifies the builder's group instance.
func (b *Builder) groupModified(p *dataflow.Pulse) bool {
	if b.group == nil {
		return false
	}
	for _, x := range p.Mod {
		if it, ok := x.(*Item); ok && it == b.group {
			return true
		}
	}
	return false
}

// buildItems creates the initial items: one per tuple of the bound data
// source, or a single item carrying the enclosing group's datum.
func (b *Builder) buildItems(out *dataflow.Pulse) {
	if b.from != nil {
		for _, t := range b.from.Values() {
			out.Add = append(out.Add, b.newItem(t))
		}
		return
	}
	datum := &dataflow.Tuple{ID: b.path, Fields: map[string]any{}}
	if b.group != nil && b.group.Datum != nil {
		datum = b.group.Datum
	}
	out.Add = append(out.Add, b.newItem(datum))
}

func (b *Builder) itemID(t *dataflow.Tuple) string {
	if b.from == nil {
		return b.path
	}
	return b.path + "|" + t.ID
}

func (b *Builder) newItem(t *dataflow.Tuple) *Item {
	it := &Item{id: b.itemID(t), Datum: t, mark: b.mark, scope: -1}
	b.items[t.ID] = it
	b.mark.insert(it)
	if b.def != nil {
		b.encodeItem(it, b.def.Encode)
	}
	return it
}

func (b *Builder) removeItem(it *Item) {
	delete(b.items, it.Datum.ID)
	b.mark.remove(it.id)
}

// bound forwards the builder's own items and refreshes the mark's bounds.
func (b *Builder) bound(p *dataflow.Pulse) (*dataflow.Pulse, error) {
	if b.disconnected {
		return dataflow.DoNotPropagate, nil
	}
	out := p.Fork()
	out.Add = b.own(p.Add)
	out.Mod = b.own(p.Mod)
	out.Rem = b.own(p.Rem)
	if out.Empty() && !p.Reflow {
		return dataflow.DoNotPropagate, nil
	}
	b.mark.Bounds = Bounds{}
	for _, it := range b.mark.Items {
		b.mark.Bounds = b.mark.Bounds.Union(it.Bounds)
	}
	return out, nil
}

func (b *Builder) own(items []dataflow.Item) []dataflow.Item {
	var out []dataflow.Item
	for _, x := range items {
		if it, ok := x.(*Item); ok && it.mark == b.mark {
			out = append(out, x)
		}
	}
	return out
}

// disconnect tears the builder out of the graph, recursively for groups,
// and drops its items from the parent's collector.
func (b *Builder) disconnect() {
	if b.disconnected {
		return
	}
	b.disconnected = true
	b.model.log.Debug("disconnecting mark", "mark", b.path, "kind", b.kind)

	if b.grp != nil {
		for _, it := range b.mark.Items {
			b.teardown(it)
		}
		b.grp.scaler.Disconnect()
		b.grp.recursor.Disconnect()
		b.grp.collector.Disconnect()
	}
	if b.from != nil {
		b.from.Unlisten(b.encoder)
	}
	for _, s := range b.signals {
		s.RemoveListener(b.encoder)
	}
	for _, sc := range b.scales {
		sc.RemoveListener(b.encoder)
	}
	b.encoder.Disconnect()
	b.bounder.Disconnect()

	if b.parent != nil {
		b.parent.grp.collector.Drop(b.mark.itemIDs()...)
	}
	if b.group != nil {
		for i, m := range b.group.Marks {
			if m == b.mark {
				b.group.Marks = append(b.group.Marks[:i], b.group.Marks[i+1:]...)
				break
			}
		}
	}
}
