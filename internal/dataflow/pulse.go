package dataflow

// Item is anything carried in a pulse's add/mod/rem sets. IDs are stable for
// the lifetime of the item.
type Item interface {
	ItemID() string
}

// DepKind names one of the dependency channels a pulse can flag and a node
// can declare interest in.
type DepKind int

const (
	DepSignals DepKind = iota
	DepData
	DepScales
	DepFields
	numDepKinds
)

func (k DepKind) String() string {
	switch k {
	case DepSignals:
		return "signals"
	case DepData:
		return "data"
	case DepScales:
		return "scales"
	case DepFields:
		return "fields"
	}
	return "unknown"
}

// Pulse describes one change travelling through the graph. All pulses of a
// pass share the stamp minted by Graph.Propagate.
type Pulse struct {
	Stamp  int64
	Reflow bool

	Add []Item
	Mod []Item
	Rem []Item

	Signals map[string]bool
	Data    map[string]bool
	Scales  map[string]bool
	Fields  map[string]bool
}

// DoNotPropagate is returned by an evaluator to stop its branch of the pass.
var DoNotPropagate = &Pulse{}

// NewPulse returns an unstamped pulse with empty change sets.
func NewPulse(reflow bool) *Pulse {
	return &Pulse{
		Reflow:  reflow,
		Signals: make(map[string]bool),
		Data:    make(map[string]bool),
		Scales:  make(map[string]bool),
		Fields:  make(map[string]bool),
	}
}

// Fork returns a pulse with the same stamp, reflow flag and dependency flags
// but no items. Nodes use it to build their output without touching the
// pulse they were handed, which other listeners may share.
func (p *Pulse) Fork() *Pulse {
	out := NewPulse(p.Reflow)
	out.Stamp = p.Stamp
	for k := DepKind(0); k < numDepKinds; k++ {
		dst := out.flags(k)
		for name, v := range p.flags(k) {
			dst[name] = v
		}
	}
	return out
}

// Clone is Fork plus a shallow copy of the item sets.
func (p *Pulse) Clone() *Pulse {
	out := p.Fork()
	out.Add = append([]Item(nil), p.Add...)
	out.Mod = append([]Item(nil), p.Mod...)
	out.Rem = append([]Item(nil), p.Rem...)
	return out
}

// Flag marks name as changed in the given channel.
func (p *Pulse) Flag(kind DepKind, name string) *Pulse {
	f := p.flags(kind)
	if f == nil {
		p.setFlags(kind, map[string]bool{name: true})
		return p
	}
	f[name] = true
	return p
}

// Changed reports whether name is flagged in the given channel.
func (p *Pulse) Changed(kind DepKind, name string) bool {
	return p.flags(kind)[name]
}

// Empty reports whether the pulse carries no items.
func (p *Pulse) Empty() bool {
	return len(p.Add) == 0 && len(p.Mod) == 0 && len(p.Rem) == 0
}

func (p *Pulse) flags(kind DepKind) map[string]bool {
	switch kind {
	case DepSignals:
		return p.Signals
	case DepData:
		return p.Data
	case DepScales:
		return p.Scales
	case DepFields:
		return p.Fields
	}
	return nil
}

func (p *Pulse) setFlags(kind DepKind, m map[string]bool) {
	switch kind {
	case DepSignals:
		p.Signals = m
	case DepData:
		p.Data = m
	case DepScales:
		p.Scales = m
	case DepFields:
		p.Fields = m
	}
}

// merge folds src into p: items are unioned by id, flags and reflow are
// or'ed. An id present in both add and mod stays in add only.
func (p *Pulse) merge(src *Pulse) {
	p.Reflow = p.Reflow || src.Reflow
	for k := DepKind(0); k < numDepKinds; k++ {
		for name, v := range src.flags(k) {
			if v {
				p.Flag(k, name)
			}
		}
	}

	added := idSet(p.Add)
	for _, it := range src.Add {
		if _, ok := added[it.ItemID()]; !ok {
			added[it.ItemID()] = struct{}{}
			p.Add = append(p.Add, it)
		}
	}

	modded := idSet(p.Mod)
	for _, it := range src.Mod {
		id := it.ItemID()
		if _, ok := modded[id]; ok {
			continue
		}
		modded[id] = struct{}{}
		p.Mod = append(p.Mod, it)
	}
	if len(added) > 0 && len(p.Mod) > 0 {
		kept := p.Mod[:0]
		for _, it := range p.Mod {
			if _, ok := added[it.ItemID()]; !ok {
				kept = append(kept, it)
			}
		}
		p.Mod = kept
	}

	removed := idSet(p.Rem)
	for _, it := range src.Rem {
		if _, ok := removed[it.ItemID()]; !ok {
			removed[it.ItemID()] = struct{}{}
			p.Rem = append(p.Rem, it)
		}
	}
}

func idSet(items []Item) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it.ItemID()] = struct{}{}
	}
	return s
}
