// Package view owns a compiled scene model and serializes every stimulus
// onto a single propagation worker.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/metrics"
	"github.com/gyaneshwarpardhi/vizflow/internal/scene"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
	"github.com/gyaneshwarpardhi/vizflow/internal/stimulus"
)

var (
	ErrQueueFull = errors.New("stimulus queue full")
	ErrTimeout   = errors.New("stimulus timed out")
)

// Result is the outcome of applying a single stimulus.
type Result struct {
	StimulusID string             `json:"stimulus_id,omitempty"`
	Kind       stimulus.Kind      `json:"kind,omitempty"`
	DurationMs int64              `json:"duration_ms"`
	Pass       dataflow.PassStats `json:"pass"`
	Items      int                `json:"items"`
	Error      string             `json:"error,omitempty"`
}

// View holds the current model. Only the worker goroutine touches the
// model's graph and scene; other goroutines go through the queue.
type View struct {
	model    atomic.Pointer[scene.Model]
	queue    *queue[*work]
	conf     spec.EngineConf
	log      *slog.Logger
	renderer scene.Renderer
	compile  []scene.Option
}

// work is either a stimulus or a function run against the current model.
type work struct {
	stim    *stimulus.Stimulus
	fn      func(context.Context, *scene.Model) error
	resultC chan *Result
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the logger for the view and every model it compiles.
func WithLogger(l *slog.Logger) Option {
	return func(v *View) { v.log = l }
}

// WithRenderer sets the hook called after every converged pass.
func WithRenderer(r scene.Renderer) Option {
	return func(v *View) { v.renderer = r }
}

// WithCompileOptions passes options to every scene.Compile the view runs.
func WithCompileOptions(opts ...scene.Option) Option {
	return func(v *View) { v.compile = append(v.compile, opts...) }
}

// New compiles def and starts the worker. Queue depth and timeouts come from
// def's engine settings and are fixed for the life of the view.
func New(ctx context.Context, def *spec.Spec, opts ...Option) (*View, error) {
	v := &View{
		conf:     def.Engine,
		log:      slog.Default(),
		renderer: scene.Nop,
	}
	for _, opt := range opts {
		opt(v)
	}
	m, err := v.compileModel(ctx, def)
	if err != nil {
		return nil, err
	}
	v.model.Store(m)
	m.Render(v.renderer)
	metrics.SceneItems.Set(float64(m.Snapshot().Count()))

	depth := v.conf.QueueDepth
	if depth <= 0 {
		depth = 1
	}
	v.queue = newQueue(ctx, 1, depth, v.process)
	return v, nil
}

func (v *View) compileModel(ctx context.Context, def *spec.Spec) (*scene.Model, error) {
	opts := append([]scene.Option{scene.WithLogger(v.log)}, v.compile...)
	m, err := scene.Compile(ctx, def, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", def.Name, err)
	}
	return m, nil
}

// Spec returns the definition of the current model.
func (v *View) Spec() *spec.Spec { return v.model.Load().Spec() }

// Apply queues s and waits for its pass to converge. A stimulus that fails
// during propagation is reported in Result.Error, not as an error.
func (v *View) Apply(ctx context.Context, s *stimulus.Stimulus) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	resultC := make(chan *Result, 1)
	if !v.submit(&work{stim: s.Stamp(), resultC: resultC}) {
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, v.queue.Cap())
	}
	return v.wait(ctx, resultC)
}

// ApplyAsync queues s for background processing. Returns false if the queue
// is full.
func (v *View) ApplyAsync(s *stimulus.Stimulus) bool {
	return v.submit(&work{stim: s.Stamp()})
}

// Snapshot copies the scene as of the last converged pass.
func (v *View) Snapshot(ctx context.Context) (scene.ItemSnapshot, error) {
	var snap scene.ItemSnapshot
	err := v.do(ctx, func(_ context.Context, m *scene.Model) error {
		snap = m.Snapshot()
		return nil
	})
	return snap, err
}

// Swap compiles def and replaces the current model once the stimuli queued
// before it have been applied.
func (v *View) Swap(ctx context.Context, def *spec.Spec) error {
	m, err := v.compileModel(ctx, def)
	if err != nil {
		return err
	}
	return v.do(ctx, func(_ context.Context, _ *scene.Model) error {
		v.model.Store(m)
		metrics.ModelSwaps.Inc()
		v.log.Info("model swapped", "spec", def.Name, "version", def.Version)
		m.Render(v.renderer)
		metrics.SceneItems.Set(float64(m.Snapshot().Count()))
		return nil
	})
}

// QueueUtilization returns queue used / capacity (0-1).
func (v *View) QueueUtilization() float64 {
	if v.queue.Cap() == 0 {
		return 0
	}
	return float64(v.queue.Len()) / float64(v.queue.Cap())
}

// Shutdown applies what is queued and stops the worker.
func (v *View) Shutdown() {
	v.queue.Drain()
}

func (v *View) submit(w *work) bool {
	if !v.queue.Submit(w) {
		metrics.StimuliDropped.Inc()
		return false
	}
	if w.stim != nil {
		metrics.StimuliEnqueued.Inc()
	}
	metrics.QueueUtilization.Set(v.QueueUtilization())
	return true
}

func (v *View) do(ctx context.Context, fn func(context.Context, *scene.Model) error) error {
	resultC := make(chan *Result, 1)
	if !v.submit(&work{fn: fn, resultC: resultC}) {
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, v.queue.Cap())
	}
	res, err := v.wait(ctx, resultC)
	if err != nil {
		return err
	}
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return nil
}

func (v *View) wait(ctx context.Context, resultC <-chan *Result) (*Result, error) {
	timeout := time.Duration(v.conf.StimulusTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resultC:
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (v *View) process(ctx context.Context, w *work) {
	m := v.model.Load()
	var res *Result
	if w.stim != nil {
		res = v.apply(ctx, m, w.stim)
	} else {
		res = &Result{}
		if err := w.fn(ctx, m); err != nil {
			res.Error = err.Error()
		}
	}
	metrics.QueueUtilization.Set(v.QueueUtilization())
	if w.resultC != nil {
		w.resultC <- res
	}
}

func (v *View) apply(ctx context.Context, m *scene.Model, s *stimulus.Stimulus) *Result {
	start := time.Now()
	res := &Result{StimulusID: s.ID, Kind: s.Kind}

	status := "success"
	if err := s.Apply(ctx, m.Graph()); err != nil {
		status = "error"
		res.Error = err.Error()
		v.log.Warn("stimulus failed", "id", s.ID, "kind", s.Kind, "target", s.Target, "error", err)
	} else {
		res.Pass = m.Graph().LastPass()
		m.Render(v.renderer)
	}
	res.Items = m.Snapshot().Count()
	res.DurationMs = time.Since(start).Milliseconds()

	metrics.StimuliProcessed.WithLabelValues(string(s.Kind), status).Inc()
	metrics.SceneItems.Set(float64(res.Items))
	v.log.Debug("stimulus applied",
		"id", s.ID, "kind", s.Kind, "stamp", res.Pass.Stamp,
		"evaluated", res.Pass.Evaluated, "duration_ms", res.DurationMs)
	return res
}
