// Package http exposes the operational surface of the cache service:
// liveness, Prometheus metrics, cache statistics, health scoring, and a
// manual warming trigger.
package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	cachemetrics "github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/metrics"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/observability"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/scheduler"
)

// Handler serves the ops endpoints.
type Handler struct {
	collector *cachemetrics.Collector
	promethe  *observability.Collector
	runner    *scheduler.Runner
	ping      func() error
	logger    *zap.Logger
}

// NewHandler builds the ops handler. ping checks the backing store for
// the liveness endpoint.
func NewHandler(collector *cachemetrics.Collector, prom *observability.Collector, runner *scheduler.Runner, ping func() error, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		collector: collector,
		promethe:  prom,
		runner:    runner,
		ping:      ping,
		logger:    logger,
	}
}

// Router assembles the chi router for the ops surface.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", h.promethe.Handler())

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/health", h.health)
		r.Post("/warm", h.warm)
	})
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// stats returns overall and per-pattern cache statistics. Optional query
// params: top (pattern limit), low_hit_threshold.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "top", 10)
	threshold := queryFloat(r, "low_hit_threshold", 0.5)

	writeJSON(w, http.StatusOK, map[string]any{
		"overall":        h.collector.GetOverallStats(),
		"topPatterns":    h.collector.GetTopPatterns(limit),
		"lowHitPatterns": h.collector.GetLowHitRatePatterns(threshold, limit),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := h.collector.GetHealthStatus()
	code := http.StatusOK
	if status.Status == cachemetrics.StatusDegraded {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// warm triggers an immediate warming run. Responds 409 when a run is
// already in progress.
func (h *Handler) warm(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.TriggerWarm(r.Context())
	if err != nil {
		h.logger.Error("manual cache warm failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if result.Skipped {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "warming already in progress"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryFloat(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}
