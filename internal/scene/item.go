package scene

import (
	"math"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
)

// Bounds is an axis-aligned box. The zero value is empty.
type Bounds struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`

	set bool
}

// Empty reports whether nothing was added to b.
func (b Bounds) Empty() bool { return !b.set }

// Add grows b to include the point (x, y).
func (b Bounds) Add(x, y float64) Bounds {
	if !b.set {
		return Bounds{X1: x, Y1: y, X2: x, Y2: y, set: true}
	}
	b.X1 = math.Min(b.X1, x)
	b.Y1 = math.Min(b.Y1, y)
	b.X2 = math.Max(b.X2, x)
	b.Y2 = math.Max(b.Y2, y)
	return b
}

// Union grows b to include o.
func (b Bounds) Union(o Bounds) Bounds {
	if !o.set {
		return b
	}
	return b.Add(o.X1, o.Y1).Add(o.X2, o.Y2)
}

// Translate shifts b by (dx, dy).
func (b Bounds) Translate(dx, dy float64) Bounds {
	if !b.set {
		return b
	}
	b.X1 += dx
	b.X2 += dx
	b.Y1 += dy
	b.Y2 += dy
	return b
}

// Item is one rendered instance of a mark: a datum plus its encoded
// properties. Group items additionally own child marks and axes.
type Item struct {
	id     string
	Datum  *dataflow.Tuple
	Props  map[string]any
	Bounds Bounds

	mark *Mark

	// Group items only.
	Marks []*Mark
	Axes  []*Axis
	scope int
}

func (it *Item) ItemID() string { return it.id }

// Mark returns the mark the item belongs to.
func (it *Item) Mark() *Mark { return it.mark }

// Group returns the enclosing group item, nil for the root.
func (it *Item) Group() *Item {
	if it.mark == nil {
		return nil
	}
	return it.mark.Group
}

// Number returns a numeric property.
func (it *Item) Number(prop string) (float64, bool) {
	return number(it.Props[prop])
}

// Mark is the set of items one builder renders for one group instance.
type Mark struct {
	Name   string
	Type   string
	Group  *Item
	Items  []*Item
	Bounds Bounds

	builder *Builder
}

// Builder returns the builder maintaining the mark.
func (m *Mark) Builder() *Builder { return m.builder }

func (m *Mark) insert(it *Item) {
	m.Items = append(m.Items, it)
}

func (m *Mark) remove(id string) {
	for i, it := range m.Items {
		if it.id == id {
			m.Items = append(m.Items[:i], m.Items[i+1:]...)
			return
		}
	}
}

func (m *Mark) itemIDs() []string {
	out := make([]string, 0, len(m.Items))
	for _, it := range m.Items {
		out = append(out, it.id)
	}
	return out
}

// ItemSnapshot is a detached, serializable copy of an item subtree.
type ItemSnapshot struct {
	ID     string         `json:"id"`
	Props  map[string]any `json:"props,omitempty"`
	Bounds Bounds         `json:"bounds"`
	Marks  []MarkSnapshot `json:"marks,omitempty"`
}

// MarkSnapshot is a detached copy of a mark.
type MarkSnapshot struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Bounds Bounds         `json:"bounds"`
	Items  []ItemSnapshot `json:"items"`
}

// Snapshot copies the item subtree.
func (it *Item) Snapshot() ItemSnapshot {
	s := ItemSnapshot{ID: it.id, Bounds: it.Bounds}
	if len(it.Props) > 0 {
		s.Props = make(map[string]any, len(it.Props))
		for k, v := range it.Props {
			s.Props[k] = v
		}
	}
	for _, m := range it.Marks {
		ms := MarkSnapshot{Name: m.Name, Type: m.Type, Bounds: m.Bounds, Items: make([]ItemSnapshot, 0, len(m.Items))}
		for _, child := range m.Items {
			ms.Items = append(ms.Items, child.Snapshot())
		}
		s.Marks = append(s.Marks, ms)
	}
	return s
}

// Count returns the number of items in the subtree, it included.
func (s ItemSnapshot) Count() int {
	n := 1
	for _, m := range s.Marks {
		for _, it := range m.Items {
			n += it.Count()
		}
	}
	return n
}
