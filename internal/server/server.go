// Package server exposes the advisory engine over HTTP as a thin JSON layer.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/advisql/advisql"
	"github.com/advisql/advisql/internal/analyzer"
	"github.com/advisql/advisql/internal/db"
	"github.com/advisql/advisql/internal/schema"
)

// Handler serves the advisory API.
type Handler struct {
	engine  *advisql.Engine
	log     *zap.Logger
	metrics *metrics
}

// NewHandler creates a handler over an engine. Metrics are registered on
// the given registry; pass nil to get a private one.
func NewHandler(engine *advisql.Engine, log *zap.Logger, reg *prometheus.Registry) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Handler{
		engine:  engine,
		log:     log,
		metrics: newMetrics(reg),
	}
}

// Router builds the configured mux router with logging and metrics
// middleware applied.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requestMiddleware)

	router.HandleFunc("/analyze-query", h.AnalyzeQuery).Methods("POST")
	router.HandleFunc("/optimize-query", h.OptimizeQuery).Methods("POST")
	router.HandleFunc("/schema", h.GetSchema).Methods("GET")
	router.HandleFunc("/schema/summary", h.GetSchemaSummary).Methods("GET")
	router.HandleFunc("/schema/tables/{table}", h.GetTable).Methods("GET")
	router.HandleFunc("/cache/stats", h.GetCacheStats).Methods("GET")
	router.HandleFunc("/cache/refresh", h.RefreshCache).Methods("POST")
	router.HandleFunc("/healthz", h.Healthz).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{})).Methods("GET")

	return router
}

type queryRequest struct {
	Query string `json:"query"`
}

func (h *Handler) decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return "", false
	}
	return req.Query, true
}

// AnalyzeQuery handles POST /analyze-query
func (h *Handler) AnalyzeQuery(w http.ResponseWriter, r *http.Request) {
	query, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	analysis, err := h.engine.Analyze(query)
	if err != nil {
		var perr *analyzer.ParseError
		if errors.As(err, &perr) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, analysis)
}

// OptimizeQuery handles POST /optimize-query
func (h *Handler) OptimizeQuery(w http.ResponseWriter, r *http.Request) {
	query, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Optimize(r.Context(), query)
	if err != nil {
		var perr *analyzer.ParseError
		if errors.As(err, &perr) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"data": result})
}

// GetSchema handles GET /schema
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	dbCtx, err := h.engine.Context(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, dbCtx)
}

// GetSchemaSummary handles GET /schema/summary
func (h *Handler) GetSchemaSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.SchemaSummary(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(summary))
}

// GetTable handles GET /schema/tables/{table}
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	info, err := h.engine.TableInfo(r.Context(), table)
	if err != nil {
		var nf *db.NotFoundError
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, info)
}

// GetCacheStats handles GET /cache/stats
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.CacheStats())
}

type refreshRequest struct {
	Category string `json:"category"`
}

// RefreshCache handles POST /cache/refresh
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	req := refreshRequest{Category: "all"}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.engine.RefreshCache(req.Category); err != nil {
		var unknown *schema.UnknownCategoryError
		if errors.As(err, &unknown) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "cache refreshed", "category": req.Category})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
