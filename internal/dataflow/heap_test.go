package dataflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_PopsInComparatorOrder(t *testing.T) {
	h := NewHeap(func(a, b int) bool { return a < b })
	for _, v := range []int{5, 1, 4, 1, 3, 9, 2} {
		h.Push(v)
	}
	require.Equal(t, 7, h.Len())

	top, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, top)

	var got []int
	for h.Len() > 0 {
		v, _ := h.Pop()
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 1, 2, 3, 4, 5, 9}, got)

	_, ok = h.Pop()
	assert.False(t, ok)
	_, ok = h.Peek()
	assert.False(t, ok)
}

func TestSchedule_IncrementalBeforeReflowAtEqualRank(t *testing.T) {
	g := New()
	n := g.NewNode("n", nil)
	reflow := &workItem{node: n, pulse: NewPulse(true), rank: n.Rank(), reflow: true}
	incremental := &workItem{node: n, pulse: NewPulse(false), rank: n.Rank()}

	for _, order := range [][]*workItem{{reflow, incremental}, {incremental, reflow}} {
		pq := NewHeap(schedule)
		for _, w := range order {
			pq.Push(w)
		}
		first, _ := pq.Pop()
		assert.Same(t, incremental, first)
	}
}

func TestSchedule_RankDominatesReflow(t *testing.T) {
	low := &workItem{rank: 1, reflow: true}
	high := &workItem{rank: 2}
	assert.True(t, schedule(low, high))
	assert.False(t, schedule(high, low))
}

func TestPropagate_MergedReflowKeepsQueuedOrder(t *testing.T) {
	// A merge that turns a queued incremental pulse into a reflow one must
	// not disturb the heap: ordering uses the values captured at push time.
	g := New()
	s := g.NewNode("s", nil)
	a := g.NewNode("a", nil)
	b := g.NewNode("b", EvaluatorFunc(func(p *Pulse) (*Pulse, error) {
		out := p.Fork()
		out.Reflow = true
		return out, nil
	}))
	c := NewCollector(g, "c")
	var seen []*Pulse
	sink := g.NewNode("sink", EvaluatorFunc(func(p *Pulse) (*Pulse, error) {
		seen = append(seen, p)
		return p, nil
	}))
	s.AddListener(a).AddListener(b)
	a.AddListener(c.Node)
	b.AddListener(c.Node)
	c.AddListener(sink)

	require.NoError(t, g.Propagate(context.Background(), NewPulse(false), s))
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Reflow)
}
