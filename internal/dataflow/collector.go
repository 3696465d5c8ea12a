package dataflow

// Collector is a fan-in node. Every pulse reaching it during a pass is merged
// into one, so downstream nodes see a single consistent update. It also keeps
// the current set of items that have flowed through it.
type Collector struct {
	*Node

	index map[string]int
	items []Item
}

// NewCollector creates a merging router node.
func NewCollector(g *Graph, name string) *Collector {
	c := &Collector{index: make(map[string]int)}
	c.Node = g.NewNode(name, EvaluatorFunc(c.evaluate))
	c.SetRouter(true).SetMerging(true)
	return c
}

// Values returns the collected items in arrival order.
func (c *Collector) Values() []Item {
	return append([]Item(nil), c.items...)
}

// Len returns the number of collected items.
func (c *Collector) Len() int {
	return len(c.items)
}

// Drop forgets items without propagating anything. Used when the producer of
// those items is torn down.
func (c *Collector) Drop(ids ...string) {
	for _, id := range ids {
		c.remove(id)
	}
}

func (c *Collector) evaluate(p *Pulse) (*Pulse, error) {
	for _, it := range p.Rem {
		c.remove(it.ItemID())
	}
	for _, it := range p.Add {
		c.put(it)
	}
	for _, it := range p.Mod {
		c.put(it)
	}
	return p, nil
}

func (c *Collector) put(it Item) {
	if i, ok := c.index[it.ItemID()]; ok {
		c.items[i] = it
		return
	}
	c.index[it.ItemID()] = len(c.items)
	c.items = append(c.items, it)
}

func (c *Collector) remove(id string) {
	i, ok := c.index[id]
	if !ok {
		return
	}
	delete(c.index, id)
	c.items = append(c.items[:i], c.items[i+1:]...)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].ItemID()] = j
	}
}
