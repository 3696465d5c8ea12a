package scene

import (
	"fmt"
	"strconv"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
)

// AxisParser resolves axis definitions for a group instance against the
// scales visible from it. It must be idempotent and must not modify its
// inputs; prev holds the result of the previous call for the same group.
type AxisParser func(m *Model, defs []spec.Axis, prev []*Axis, group *Item) []*Axis

// Axis is a resolved axis definition.
type Axis struct {
	Spec  spec.Axis
	scale *Scale
}

// AxisDef is what an axis renders: one tick per value.
type AxisDef struct {
	Scale  string `json:"scale"`
	Orient string `json:"orient"`
	Title  string `json:"title,omitempty"`
	Values []any  `json:"values"`
}

// Scale returns the bound scale, if it resolved.
func (a *Axis) Scale() (*Scale, bool) { return a.scale, a.scale != nil }

// Def derives the tick values from the current state of the scale. An
// unresolved scale yields no ticks.
func (a *Axis) Def() AxisDef {
	d := AxisDef{Scale: a.Spec.Scale, Orient: a.Spec.Orient, Title: a.Spec.Title}
	if a.scale != nil {
		d.Values = a.scale.Ticks(a.Spec.Ticks)
	}
	return d
}

// ParseAxes is the default AxisParser.
func ParseAxes(m *Model, defs []spec.Axis, prev []*Axis, group *Item) []*Axis {
	out := make([]*Axis, len(defs))
	for i, def := range defs {
		a := &Axis{Spec: def}
		a.scale, _ = m.Scale(group.scope, def.Scale)
		out[i] = a
	}
	return out
}

func (b *Builder) axis() *Axis {
	if b.group == nil || b.axisIndex < 0 || b.axisIndex >= len(b.group.Axes) {
		return nil
	}
	return b.group.Axes[b.axisIndex]
}

// reconcileTicks rebuilds the tick items from the axis definition, reusing
// items by tick index.
func (b *Builder) reconcileTicks(out *dataflow.Pulse) {
	a := b.axis()
	if a == nil {
		return
	}
	def := a.Def()
	for i, v := range def.Values {
		id := strconv.Itoa(i)
		fields := map[string]any{"index": i, "value": v, "label": fmt.Sprint(v)}
		if it, ok := b.items[id]; ok {
			it.Datum.Fields = fields
			b.encodeTick(it, a)
			out.Mod = append(out.Mod, it)
			continue
		}
		t := &dataflow.Tuple{ID: id, Fields: fields}
		it := &Item{id: b.path + "|" + id, Datum: t, mark: b.mark, scope: -1}
		b.items[id] = it
		b.mark.insert(it)
		b.encodeTick(it, a)
		out.Add = append(out.Add, it)
	}
	for i := len(def.Values); ; i++ {
		it, ok := b.items[strconv.Itoa(i)]
		if !ok {
			break
		}
		b.removeItem(it)
		out.Rem = append(out.Rem, it)
	}
}

// encodeTick places a tick along the group edge named by the axis orient.
// Ordinal ticks sit at the band center.
func (b *Builder) encodeTick(it *Item, a *Axis) {
	v, _ := it.Datum.Get("value")
	props := map[string]any{"value": v, "label": it.Datum.Fields["label"]}
	it.Props = props
	it.Bounds = Bounds{}

	sc, ok := a.Scale()
	if !ok {
		return
	}
	pos, ok := sc.Map(v)
	if !ok {
		return
	}
	pos += sc.Bandwidth() / 2

	var width, height float64
	if b.group != nil {
		width, _ = b.group.Number("width")
		height, _ = b.group.Number("height")
	}
	switch a.Spec.Orient {
	case "bottom":
		props["x"], props["y"] = pos, height
	case "top":
		props["x"], props["y"] = pos, 0.0
	case "left":
		props["x"], props["y"] = 0.0, pos
	case "right":
		props["x"], props["y"] = width, pos
	}
	it.Bounds = itemBounds(it)
}
