package dataflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
)

type item string

func (i item) ItemID() string { return string(i) }

// recorder collects every pulse a node was evaluated with, in order.
type recorder struct {
	order  *[]string
	pulses []*dataflow.Pulse
}

func (r *recorder) node(g *dataflow.Graph, name string) *dataflow.Node {
	return g.NewNode(name, dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		r.pulses = append(r.pulses, p)
		if r.order != nil {
			*r.order = append(*r.order, name)
		}
		return p, nil
	}))
}

func ids(items []dataflow.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ItemID())
	}
	return out
}

func TestPropagate_CollectorMergesFanIn(t *testing.T) {
	g := dataflow.New()
	var a, b, d recorder

	s := g.NewNode("S", nil)
	an := a.node(g, "A")
	bn := b.node(g, "B")
	c := dataflow.NewCollector(g, "C")
	dn := d.node(g, "D")

	s.AddListener(an).AddListener(bn)
	an.AddListener(c.Node)
	bn.AddListener(c.Node)
	c.AddListener(dn)

	p := dataflow.NewPulse(false)
	p.Add = []dataflow.Item{item("item1")}
	require.NoError(t, g.Propagate(context.Background(), p, s))

	require.Len(t, a.pulses, 1)
	require.Len(t, b.pulses, 1)
	assert.Equal(t, []string{"item1"}, ids(a.pulses[0].Add))
	assert.Equal(t, []string{"item1"}, ids(b.pulses[0].Add))

	require.Len(t, d.pulses, 1, "collector must forward exactly one merged pulse")
	assert.Equal(t, []string{"item1"}, ids(d.pulses[0].Add))
	assert.Equal(t, p.Stamp, d.pulses[0].Stamp)
	assert.Equal(t, 1, c.Len())
}

func TestPropagate_CollectorMergesDistinctContributions(t *testing.T) {
	g := dataflow.New()
	var d recorder

	s := g.NewNode("S", nil)
	left := g.NewNode("L", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		out := p.Fork()
		out.Add = []dataflow.Item{item("l")}
		out.Flag(dataflow.DepScales, "x")
		return out, nil
	}))
	right := g.NewNode("R", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		out := p.Fork()
		out.Add = []dataflow.Item{item("r")}
		out.Mod = []dataflow.Item{item("l")}
		return out, nil
	}))
	c := dataflow.NewCollector(g, "C")
	dn := d.node(g, "D")
	s.AddListener(left).AddListener(right)
	left.AddListener(c.Node)
	right.AddListener(c.Node)
	c.AddListener(dn)

	require.NoError(t, g.Propagate(context.Background(), dataflow.NewPulse(false), s))

	require.Len(t, d.pulses, 1)
	got := d.pulses[0]
	assert.ElementsMatch(t, []string{"l", "r"}, ids(got.Add))
	assert.Empty(t, got.Mod, "an id added in the same pass stays in add only")
	assert.True(t, got.Changed(dataflow.DepScales, "x"))
}

func TestPropagate_RestampFailsBeforeEvaluation(t *testing.T) {
	g := dataflow.New()
	var r recorder
	n := r.node(g, "N")

	p := dataflow.NewPulse(false)
	require.NoError(t, g.Propagate(context.Background(), p, n))
	require.Len(t, r.pulses, 1)

	err := g.Propagate(context.Background(), p, n)
	require.ErrorIs(t, err, dataflow.ErrAlreadyStamped)
	assert.Len(t, r.pulses, 1, "no node may run for a re-stamped pulse")
	assert.Equal(t, int64(1), g.Stamp())
}

func TestPropagate_ListenerAddedMidPassReceivesPulse(t *testing.T) {
	g := dataflow.New()
	var late recorder
	var spawned *dataflow.Node

	var grower *dataflow.Node
	grower = g.NewNode("grower", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		spawned = late.node(g, "late")
		grower.AddListener(spawned)
		return p, nil
	}))

	p := dataflow.NewPulse(false)
	p.Add = []dataflow.Item{item("g1")}
	require.NoError(t, g.Propagate(context.Background(), p, grower))

	require.NotNil(t, spawned)
	require.Len(t, late.pulses, 1)
	assert.Equal(t, p.Stamp, late.pulses[0].Stamp)
	assert.Equal(t, []string{"g1"}, ids(late.pulses[0].Add))
}

func TestPropagate_RequeuesOnRankChange(t *testing.T) {
	g := dataflow.New()
	var order []string
	rec := &recorder{order: &order}

	s := rec.node(g, "S")
	var x, z *dataflow.Node
	x = g.NewNode("X", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		order = append(order, "X")
		z2 := rec.node(g, "Z2")
		x.AddListener(z2)
		z2.AddListener(z) // re-ranks Z above Z2 while Z is queued
		return p, nil
	}))
	z = g.NewNode("Z", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		order = append(order, "Z")
		return p, nil
	}))
	s.AddListener(x).AddListener(z)

	require.NoError(t, g.Propagate(context.Background(), dataflow.NewPulse(false), s))

	assert.Equal(t, []string{"S", "X", "Z2", "Z", "Z"}, order)
	assert.Equal(t, 1, g.LastPass().Requeued)
}

func TestPropagate_HardSkipDropsRepeatedReflow(t *testing.T) {
	for _, tc := range []struct {
		name      string
		hard      bool
		wantEvals int
		wantSkips int
	}{
		{name: "enabled", hard: true, wantEvals: 1, wantSkips: 1},
		{name: "disabled", hard: false, wantEvals: 2, wantSkips: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := dataflow.New(dataflow.WithHardSkips(tc.hard))
			var j recorder
			s := g.NewNode("S", nil)
			a := g.NewNode("A", nil)
			b := g.NewNode("B", nil)
			jn := j.node(g, "J")
			s.AddListener(a).AddListener(b)
			a.AddListener(jn)
			b.AddListener(jn)

			require.NoError(t, g.Propagate(context.Background(), dataflow.NewPulse(true), s))
			assert.Len(t, j.pulses, tc.wantEvals)
			assert.Equal(t, tc.wantSkips, g.LastPass().HardSkipped)
		})
	}
}

// diamond wires signal -> {double, inc} -> join -> collector -> sink and
// returns the sink's last observed value and how often it ran.
func diamond(t *testing.T, opts ...dataflow.Option) (last float64, sinkRuns int, stats dataflow.PassStats) {
	t.Helper()
	g := dataflow.New(opts...)
	sig := g.NewSignal("s", 1.0)
	var doubled, incremented float64

	double := g.NewNode("double", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		doubled = sig.Value().(float64) * 2
		return p, nil
	}))
	double.Dependency(dataflow.DepSignals, "s")
	inc := g.NewNode("inc", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		incremented = sig.Value().(float64) + 1
		return p, nil
	}))
	inc.Dependency(dataflow.DepSignals, "s")
	unrelated := g.NewNode("unrelated", nil).Dependency(dataflow.DepSignals, "other")

	var joined float64
	join := g.NewNode("join", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		joined = doubled + incremented
		out := p.Fork()
		out.Mod = []dataflow.Item{item("j")}
		return out, nil
	}))
	c := dataflow.NewCollector(g, "collect")
	sink := g.NewNode("sink", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		sinkRuns++
		last = joined
		return p, nil
	}))

	sig.AddListener(double).AddListener(inc).AddListener(unrelated)
	double.AddListener(join)
	inc.AddListener(join)
	unrelated.AddListener(join)
	join.AddListener(c.Node)
	c.AddListener(sink)

	for _, v := range []float64{3, 7, 11} {
		require.NoError(t, sig.Set(v).Fire(context.Background()))
	}
	return last, sinkRuns, g.LastPass()
}

func TestPropagate_SkipsDoNotChangeOutput(t *testing.T) {
	want, _, full := diamond(t, dataflow.WithHardSkips(false), dataflow.WithSoftSkips(false))
	assert.Equal(t, 34.0, want)
	assert.Zero(t, full.HardSkipped)
	assert.Zero(t, full.SoftSkipped)

	for _, tc := range []struct {
		name string
		opts []dataflow.Option
	}{
		{name: "hard only", opts: []dataflow.Option{dataflow.WithSoftSkips(false)}},
		{name: "soft only", opts: []dataflow.Option{dataflow.WithHardSkips(false)}},
		{name: "both", opts: nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, _, stats := diamond(t, tc.opts...)
			assert.Equal(t, want, got)
			assert.Less(t, stats.Evaluated, full.Evaluated)
		})
	}
}

func TestPropagate_DoNotPropagateEndsBranch(t *testing.T) {
	g := dataflow.New()
	var r recorder
	stop := g.NewNode("stop", dataflow.EvaluatorFunc(func(*dataflow.Pulse) (*dataflow.Pulse, error) {
		return dataflow.DoNotPropagate, nil
	}))
	stop.AddListener(r.node(g, "after"))

	require.NoError(t, g.Propagate(context.Background(), dataflow.NewPulse(false), stop))
	assert.Empty(t, r.pulses)
}

func TestPropagate_EvaluationErrorAbortsPass(t *testing.T) {
	g := dataflow.New()
	boom := errors.New("boom")
	var r recorder
	bad := g.NewNode("bad", dataflow.EvaluatorFunc(func(*dataflow.Pulse) (*dataflow.Pulse, error) {
		return nil, boom
	}))
	bad.AddListener(r.node(g, "after"))

	err := g.Propagate(context.Background(), dataflow.NewPulse(false), bad)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad#")
	assert.Empty(t, r.pulses)

	// The graph stays usable for later passes.
	require.NoError(t, g.Propagate(context.Background(), dataflow.NewPulse(false), g.NewNode("ok", nil)))
}

func TestPropagate_RejectsReentrantCall(t *testing.T) {
	g := dataflow.New()
	other := g.NewNode("other", nil)
	var inner error
	n := g.NewNode("n", dataflow.EvaluatorFunc(func(p *dataflow.Pulse) (*dataflow.Pulse, error) {
		inner = g.Propagate(context.Background(), dataflow.NewPulse(false), other)
		return p, nil
	}))

	require.NoError(t, g.Propagate(context.Background(), dataflow.NewPulse(false), n))
	assert.ErrorIs(t, inner, dataflow.ErrReentrantPropagate)
}

func TestPropagate_RejectsNilArguments(t *testing.T) {
	g := dataflow.New()
	assert.ErrorIs(t, g.Propagate(context.Background(), nil, g.NewNode("n", nil)), dataflow.ErrNilPulse)
	assert.ErrorIs(t, g.Propagate(context.Background(), dataflow.NewPulse(false), nil), dataflow.ErrNilSource)
}

func TestReevaluate(t *testing.T) {
	g := dataflow.New()
	plain := g.NewNode("plain", nil)
	dep := g.NewNode("dep", nil).Dependency(dataflow.DepSignals, "a").Dependency(dataflow.DepScales, "x")
	router := g.NewNode("router", nil).Dependency(dataflow.DepScales, "x").SetRouter(true)

	withAdd := dataflow.NewPulse(false)
	withAdd.Add = []dataflow.Item{item("1")}

	cases := []struct {
		name string
		node *dataflow.Node
		p    *dataflow.Pulse
		want bool
	}{
		{"no deps always runs", plain, dataflow.NewPulse(true), true},
		{"unrelated signal skipped", dep, dataflow.NewPulse(true).Flag(dataflow.DepSignals, "b"), false},
		{"declared signal runs", dep, dataflow.NewPulse(true).Flag(dataflow.DepSignals, "a"), true},
		{"declared scale runs", dep, dataflow.NewPulse(false).Flag(dataflow.DepScales, "x"), true},
		{"non-router ignores adds", dep, withAdd, false},
		{"router runs on add", router, withAdd, true},
		{"router without change skipped", router, dataflow.NewPulse(false), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.Reevaluate(tc.node, tc.p))
		})
	}

	off := dataflow.New(dataflow.WithSoftSkips(false))
	n := off.NewNode("dep", nil).Dependency(dataflow.DepSignals, "a")
	assert.True(t, off.Reevaluate(n, dataflow.NewPulse(true)))
}

func TestAddListener_RanksListenerAboveSource(t *testing.T) {
	g := dataflow.New()
	down := g.NewNode("down", nil)
	downer := g.NewNode("downer", nil)
	down.AddListener(downer)
	up := g.NewNode("up", nil)

	require.Less(t, down.Rank(), up.Rank())
	up.AddListener(down)

	assert.Greater(t, down.Rank(), up.Rank())
	assert.Greater(t, downer.Rank(), down.Rank())

	up.AddListener(down)
	assert.Len(t, up.Listeners(), 1, "duplicate listeners are ignored")
	assert.True(t, up.RemoveListener(down))
	assert.False(t, up.RemoveListener(down))
}

func TestFireSignals_SinglePassForSeveralSignals(t *testing.T) {
	g := dataflow.New()
	a := g.NewSignal("a", 1)
	b := g.NewSignal("b", 2)
	var r recorder
	both := r.node(g, "both").Dependency(dataflow.DepSignals, "a", "b")
	a.AddListener(both)
	b.AddListener(both)

	require.NoError(t, g.FireSignals(context.Background(), "a", "b"))
	require.Len(t, r.pulses, 1)
	assert.True(t, r.pulses[0].Changed(dataflow.DepSignals, "a"))
	assert.True(t, r.pulses[0].Changed(dataflow.DepSignals, "b"))
	assert.Equal(t, 1, g.LastPass().HardSkipped)

	assert.ErrorIs(t, g.FireSignals(context.Background(), "missing"), dataflow.ErrUnknownSignal)
}

func TestFireSignals_KeepsRanksAndDropsFanEdges(t *testing.T) {
	ctx := context.Background()
	g := dataflow.New()
	a := g.NewSignal("a", 1)
	b := g.NewSignal("b", 2)
	var ra, rb recorder
	onA := ra.node(g, "onA")
	onB := rb.node(g, "onB")
	a.AddListener(onA)
	b.AddListener(onB)
	ranks := []int64{a.Rank(), b.Rank(), onA.Rank(), onB.Rank()}

	require.NoError(t, g.FireSignals(ctx, "a", "b"))
	require.NoError(t, g.FireSignals(ctx, "b", "a"))
	assert.Equal(t, ranks, []int64{a.Rank(), b.Rank(), onA.Rank(), onB.Rank()})
	assert.Len(t, ra.pulses, 2)

	// A failed call must not leave "a" attached for the next one.
	assert.ErrorIs(t, g.FireSignals(ctx, "a", "missing"), dataflow.ErrUnknownSignal)
	require.NoError(t, g.FireSignals(ctx, "b"))
	assert.Len(t, ra.pulses, 2)
	assert.Len(t, rb.pulses, 3)
}
