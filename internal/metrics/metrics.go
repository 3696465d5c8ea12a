package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vizflow_propagation_passes_total",
		Help: "Total number of propagation passes run to convergence.",
	})

	PassesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vizflow_propagation_passes_failed_total",
		Help: "Total number of propagation passes abandoned by a node error.",
	})

	NodeEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vizflow_node_evaluations_total",
		Help: "Total number of node evaluations across all passes.",
	})

	Skips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vizflow_node_skips_total",
		Help: "Total number of skipped node evaluations, labelled by skip kind (hard|soft).",
	}, []string{"kind"})

	RankRequeues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vizflow_rank_requeues_total",
		Help: "Work items re-queued because the node's rank changed while queued.",
	})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vizflow_propagation_duration_seconds",
		Help:    "Wall time of a single propagation pass.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	StimuliEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vizflow_stimuli_enqueued_total",
		Help: "Total number of stimuli placed on the view queue.",
	})

	StimuliProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vizflow_stimuli_processed_total",
		Help: "Total number of stimuli applied, labelled by kind and status.",
	}, []string{"kind", "status"})

	StimuliDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vizflow_stimuli_dropped_total",
		Help: "Total number of stimuli rejected due to a full queue.",
	})

	ModelSwaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vizflow_model_swaps_total",
		Help: "Total number of models swapped in after a spec reload.",
	})

	SceneItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vizflow_scene_items",
		Help: "Number of scene items after the last converged pass.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vizflow_queue_utilization_ratio",
		Help: "Current stimulus queue utilization (0–1).",
	})
)
