package dataflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/vizflow/internal/metrics"
)

// PassStats summarizes one propagation pass.
type PassStats struct {
	Stamp       int64 `json:"stamp"`
	Evaluated   int   `json:"evaluated"`
	HardSkipped int   `json:"hard_skipped"`
	SoftSkipped int   `json:"soft_skipped"`
	Requeued    int   `json:"requeued"`
}

// Graph owns the stamp and rank counters and runs propagation passes.
type Graph struct {
	stamp int64
	rank  int64
	ids   int64

	hardSkips bool
	softSkips bool
	running   bool

	signals map[string]*Signal
	data    map[string]*DataSource
	fan     *Node

	last   PassStats
	log    *slog.Logger
	tracer trace.Tracer
}

// Option configures a Graph.
type Option func(*Graph)

// WithHardSkips toggles the scheduler-level skip of nodes already reflowed
// in the current pass.
func WithHardSkips(enabled bool) Option {
	return func(g *Graph) { g.hardSkips = enabled }
}

// WithSoftSkips toggles the dependency-based skip in Reevaluate.
func WithSoftSkips(enabled bool) Option {
	return func(g *Graph) { g.softSkips = enabled }
}

// WithLogger sets the logger for rank mismatches and pass diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.log = l }
}

// WithTracer sets the tracer that opens a span per pass.
func WithTracer(t trace.Tracer) Option {
	return func(g *Graph) { g.tracer = t }
}

// New returns an empty graph with both skips enabled.
func New(opts ...Option) *Graph {
	g := &Graph{
		hardSkips: true,
		softSkips: true,
		signals:   make(map[string]*Signal),
		data:      make(map[string]*DataSource),
		log:       slog.Default(),
		tracer:    otel.Tracer("vizflow/dataflow"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stamp returns the stamp of the most recent pass.
func (g *Graph) Stamp() int64 { return g.stamp }

// LastPass returns statistics of the most recent pass.
func (g *Graph) LastPass() PassStats { return g.last }

// Signal looks up a registered signal by name.
func (g *Graph) Signal(name string) (*Signal, bool) {
	s, ok := g.signals[name]
	return s, ok
}

// Data looks up a registered data source by name.
func (g *Graph) Data(name string) (*DataSource, bool) {
	ds, ok := g.data[name]
	return ds, ok
}

func (g *Graph) nextRank() int64 {
	g.rank++
	return g.rank
}

// workItem is one pending (node, pulse) evaluation. rank and reflow are
// captured at enqueue time; the heap orders on the captured values only.
type workItem struct {
	node   *Node
	pulse  *Pulse
	rank   int64
	reflow bool
	owned  bool // pulse was cloned for merging and may be mutated
}

// schedule orders work by rank and, at equal rank, puts incremental pulses
// ahead of reflow pulses so that a later reflow can be hard-skipped.
func schedule(a, b *workItem) bool {
	if a.rank == b.rank {
		return !a.reflow && b.reflow
	}
	return a.rank < b.rank
}

// Propagate stamps p and drives it from source to convergence. It returns
// only once the pass is complete. Evaluation errors abort the pass and leave
// the graph as of the last completed step.
func (g *Graph) Propagate(ctx context.Context, p *Pulse, source *Node) error {
	switch {
	case p == nil:
		return ErrNilPulse
	case source == nil:
		return ErrNilSource
	case g.running:
		return ErrReentrantPropagate
	case p.Stamp != 0:
		return fmt.Errorf("%w: %d", ErrAlreadyStamped, p.Stamp)
	}

	g.running = true
	defer func() { g.running = false }()

	g.stamp++
	p.Stamp = g.stamp

	_, span := g.tracer.Start(ctx, "dataflow.Propagate",
		trace.WithAttributes(
			attribute.Int64("stamp", p.Stamp),
			attribute.String("source", source.String()),
			attribute.Bool("reflow", p.Reflow),
		))
	defer span.End()
	timer := prometheus.NewTimer(metrics.PassDuration)
	defer timer.ObserveDuration()

	stats := PassStats{Stamp: p.Stamp}
	defer func() { g.last = stats }()

	// A new queue per pass: nodes built mid-pass enqueue work into the pass
	// that created them.
	pq := NewHeap(schedule)
	pending := make(map[*Node]*workItem)
	pq.Push(&workItem{node: source, pulse: p, rank: source.Rank(), reflow: p.Reflow})

	for pq.Len() > 0 {
		w, _ := pq.Pop()
		n := w.node
		if pending[n] == w {
			delete(pending, n)
		}

		if w.rank != n.Rank() {
			g.log.Debug("rank mismatch", "node", n.String(), "queued", w.rank, "rank", n.Rank(), "stamp", p.Stamp)
			stats.Requeued++
			metrics.RankRequeues.Inc()
			w.rank = n.Rank()
			pq.Push(w)
			if n.merges {
				pending[n] = w
			}
			continue
		}

		if g.hardSkips && w.pulse.Reflow && n.Last() >= w.pulse.Stamp {
			stats.HardSkipped++
			metrics.Skips.WithLabelValues("hard").Inc()
			continue
		}

		out, err := g.evaluate(w.pulse, n, &stats)
		if err != nil {
			metrics.PassesFailed.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("evaluate %s: %w", n, err)
		}
		if out == DoNotPropagate {
			continue
		}

		// Listeners are read after evaluation so that nodes attached by the
		// evaluation itself receive this pulse.
		for _, l := range n.listeners {
			g.enqueue(pq, pending, l, out)
		}
	}

	metrics.PassesTotal.Inc()
	span.SetAttributes(
		attribute.Int("evaluated", stats.Evaluated),
		attribute.Int("hard_skipped", stats.HardSkipped),
		attribute.Int("soft_skipped", stats.SoftSkipped),
		attribute.Int("requeued", stats.Requeued),
	)
	return nil
}

func (g *Graph) enqueue(pq *Heap[*workItem], pending map[*Node]*workItem, l *Node, p *Pulse) {
	if l.merges {
		if w, ok := pending[l]; ok {
			if !w.owned {
				w.pulse = w.pulse.Clone()
				w.owned = true
			}
			w.pulse.merge(p)
			return
		}
	}
	w := &workItem{node: l, pulse: p, rank: l.Rank(), reflow: p.Reflow}
	pq.Push(w)
	if l.merges {
		pending[l] = w
	}
}

func (g *Graph) evaluate(p *Pulse, n *Node, stats *PassStats) (*Pulse, error) {
	if !g.Reevaluate(n, p) {
		stats.SoftSkipped++
		metrics.Skips.WithLabelValues("soft").Inc()
		return p, nil
	}
	stats.Evaluated++
	metrics.NodeEvaluations.Inc()
	n.last = p.Stamp
	return n.evaluate(p)
}

// Reevaluate decides whether n must run for p. Nodes without declared
// dependencies always run; routers run on any add or remove; everything else
// runs only if one of its dependencies is flagged in p.
func (g *Graph) Reevaluate(n *Node, p *Pulse) bool {
	if !g.softSkips || !n.HasDeps() {
		return true
	}
	if n.router && (len(p.Add) > 0 || len(p.Rem) > 0) {
		return true
	}
	for k := DepKind(0); k < numDepKinds; k++ {
		flags := p.flags(k)
		for name := range n.deps[k] {
			if flags[name] {
				return true
			}
		}
	}
	return false
}

// FireSignals propagates one reflow pulse flagged with every named signal,
// so that nodes depending on several of them run once.
func (g *Graph) FireSignals(ctx context.Context, names ...string) error {
	// The fan ranks below every signal, so attaching them never reranks.
	if g.fan == nil {
		g.fan = g.NewNode("fan", nil)
		g.fan.rank = 0
	}
	fan := g.fan
	defer fan.Disconnect()

	p := NewPulse(true)
	for _, name := range names {
		s, ok := g.signals[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSignal, name)
		}
		fan.AddListener(s.Node)
		p.Flag(DepSignals, name)
	}
	return g.Propagate(ctx, p, fan)
}
