package scene

import (
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/expr"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
)

func number(v any) (float64, bool) { return expr.Number(v) }

// encodeItem evaluates every encoding channel of def for it and recomputes
// its own bounds. A channel whose scale does not resolve is left unset.
func (b *Builder) encodeItem(it *Item, encode map[string]spec.ValueRef) {
	props := make(map[string]any, len(encode))
	names := make([]string, 0, len(encode))
	for name := range encode {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, ok := b.resolve(it, encode[name])
		if !ok {
			b.model.log.Debug("deferring channel", "mark", b.name, "item", it.id, "channel", name)
			continue
		}
		props[name] = v
	}
	it.Props = props
	it.Bounds = itemBounds(it)
}

func (b *Builder) resolve(it *Item, ref spec.ValueRef) (any, bool) {
	var v any
	switch {
	case ref.Value != nil:
		v = ref.Value
	case ref.Field != "":
		v = field(it, ref.Field)
	case ref.FieldSignal != "":
		name, _ := b.model.graph.SignalValue(ref.FieldSignal)
		v = field(it, fmt.Sprint(name))
	case ref.Signal != "":
		v, _ = b.model.graph.SignalValue(ref.Signal)
	}

	if ref.Scale != "" {
		sc, ok := b.model.Scale(b.scope, ref.Scale)
		if !ok {
			return nil, false
		}
		if ref.Band {
			v = sc.Bandwidth()
		} else {
			if v, ok = sc.Map(v); !ok {
				return nil, false
			}
		}
	}

	// Numbers are stored as float64 whatever their source.
	if x, ok := number(v); ok {
		return x + ref.Offset, true
	}
	return v, v != nil
}

func field(it *Item, name string) any {
	if it.Datum == nil {
		return nil
	}
	v, _ := it.Datum.Get(name)
	return v
}

// itemBounds derives an item's box from its x, y, width, height channels,
// with x2 and y2 taking precedence over width and height.
func itemBounds(it *Item) Bounds {
	x, xok := it.Number("x")
	y, yok := it.Number("y")
	if !xok && !yok {
		return Bounds{}
	}
	x2, ok := it.Number("x2")
	if !ok {
		w, _ := it.Number("width")
		x2 = x + w
	}
	y2, ok := it.Number("y2")
	if !ok {
		h, _ := it.Number("height")
		y2 = y + h
	}
	return Bounds{}.Add(x, y).Add(x2, y2)
}

// signalsOf lists the signals an encoding reads.
func signalsOf(encode map[string]spec.ValueRef) []string {
	var out []string
	seen := map[string]bool{}
	for _, ref := range encode {
		for _, name := range []string{ref.Signal, ref.FieldSignal} {
			if name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// scalesOf lists the scales an encoding reads.
func scalesOf(encode map[string]spec.ValueRef) []string {
	var out []string
	seen := map[string]bool{}
	for _, ref := range encode {
		if ref.Scale != "" && !seen[ref.Scale] {
			seen[ref.Scale] = true
			out = append(out, ref.Scale)
		}
	}
	sort.Strings(out)
	return out
}

// fieldsOf lists the datum fields an encoding reads by name.
func fieldsOf(encode map[string]spec.ValueRef) []string {
	var out []string
	seen := map[string]bool{}
	for _, ref := range encode {
		if ref.Field != "" && !seen[ref.Field] {
			seen[ref.Field] = true
			out = append(out, ref.Field)
		}
	}
	sort.Strings(out)
	return out
}

// inheritedFields lists the datum fields read by marks that inherit their
// group's datum, descending through inheriting groups. dynamic reports
// whether any of them picks a field through a signal.
func inheritedFields(marks []spec.Mark) (fields []string, dynamic bool) {
	seen := map[string]bool{}
	var walk func([]spec.Mark)
	walk = func(marks []spec.Mark) {
		for i := range marks {
			mk := &marks[i]
			if mk.From != nil {
				continue
			}
			for _, f := range fieldsOf(mk.Encode) {
				if !seen[f] {
					seen[f] = true
					fields = append(fields, f)
				}
			}
			if len(fieldSignalsOf(mk.Encode)) > 0 {
				dynamic = true
			}
			if mk.IsGroup() {
				walk(mk.Marks)
			}
		}
	}
	walk(marks)
	sort.Strings(fields)
	return fields, dynamic
}

// fieldSignalsOf lists the signals naming a datum field to read.
func fieldSignalsOf(encode map[string]spec.ValueRef) []string {
	var out []string
	for _, ref := range encode {
		if ref.FieldSignal != "" {
			out = append(out, ref.FieldSignal)
		}
	}
	sort.Strings(out)
	return out
}

var _ dataflow.Item = (*Item)(nil)
