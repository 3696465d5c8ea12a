package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/vizflow/internal/metrics"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
	"github.com/gyaneshwarpardhi/vizflow/internal/stimulus"
	"github.com/gyaneshwarpardhi/vizflow/internal/view"
)

const maxBatchSize = 100

// Handler holds all HTTP handler dependencies.
type Handler struct {
	view   *view.View
	loader *spec.Loader
	log    *slog.Logger
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(v *view.View, loader *spec.Loader, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{view: v, loader: loader, log: log, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/signals", h.setSignals)
	h.mux.HandleFunc("POST /v1/signals/{name}", h.setSignal)
	h.mux.HandleFunc("POST /v1/data/{name}", h.changeData)
	h.mux.HandleFunc("POST /v1/stimuli/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/scene", h.scene)
	h.mux.HandleFunc("GET /v1/spec", h.currentSpec)
	h.mux.HandleFunc("POST /v1/spec/reload", h.reloadSpec)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(log, h.mux)
}

// POST /v1/signals/{name}: set and fire one signal, wait for convergence.
func (h *Handler) setSignal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	h.apply(w, r, stimulus.Signal(r.PathValue("name"), body.Value))
}

// POST /v1/signals: set several signals and fire them in one pass.
func (h *Handler) setSignals(w http.ResponseWriter, r *http.Request) {
	s := stimulus.New(stimulus.KindSignals, "")
	if err := json.NewDecoder(r.Body).Decode(&s.Signals); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	h.apply(w, r, s)
}

// POST /v1/data/{name}: insert, remove or update tuples.
func (h *Handler) changeData(w http.ResponseWriter, r *http.Request) {
	var s stimulus.Stimulus
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	switch s.Kind {
	case stimulus.KindInsert, stimulus.KindRemove, stimulus.KindUpdate:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("kind must be insert, remove or update, got %q", s.Kind))
		return
	}
	s.Target = r.PathValue("name")
	h.apply(w, r, s.Stamp())
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, s *stimulus.Stimulus) {
	res, err := h.view.Apply(r.Context(), s)
	switch {
	case errors.Is(err, stimulus.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, view.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, view.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case res.Error != "":
		writeJSON(w, http.StatusUnprocessableEntity, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /v1/stimuli/batch: async batch ingestion (up to 100 stimuli).
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var batch []*stimulus.Stimulus
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one stimulus")
		return
	}
	if len(batch) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(batch), maxBatchSize))
		return
	}
	for i, s := range batch {
		if s == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("stimulus %d: null", i))
			return
		}
		if err := s.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("stimulus %d: %s", i, err))
			return
		}
	}

	jobID := uuid.NewString()
	queued := 0
	for _, s := range batch {
		if h.view.ApplyAsync(s) {
			queued++
		}
	}
	h.log.Debug("batch queued", "job_id", jobID, "total", len(batch), "queued", queued)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   jobID,
		"total":    len(batch),
		"queued":   queued,
		"rejected": len(batch) - queued,
	})
}

// GET /v1/scene: the scene tree as of the last converged pass.
func (h *Handler) scene(w http.ResponseWriter, r *http.Request) {
	snap, err := h.view.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /v1/spec: the definition of the live model.
func (h *Handler) currentSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view.Spec())
}

// POST /v1/spec/reload: re-read the spec file and swap the model.
func (h *Handler) reloadSpec(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "no spec file configured")
		return
	}
	s, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	// An OnChange hook may already have swapped it in.
	if h.view.Spec() != s {
		if err := h.view.Swap(r.Context(), s); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"name":     s.Name,
		"version":  s.Version,
		"marks":    len(s.Marks),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the stimulus queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.view.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
