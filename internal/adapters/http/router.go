package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/file-toolbox/internal/config"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
	"github.com/kirillkom/file-toolbox/internal/observability/metrics"
)

const (
	serviceName    = "api"
	serviceVersion = "1.0.0"
)

type Router struct {
	cfg       config.Config
	converter ports.BatchConverter
	artifacts ports.ArtifactFetcher
	catalog   ports.ToolCatalog
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	converter ports.BatchConverter,
	artifacts ports.ArtifactFetcher,
	catalog ports.ToolCatalog,
) *Router {
	return &Router{
		cfg:       cfg,
		converter: converter,
		artifacts: artifacts,
		catalog:   catalog,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rt.index)
	mux.HandleFunc("GET /api/health", rt.health)
	mux.HandleFunc("GET /api/tools", rt.listTools)
	mux.HandleFunc("GET /api/tools/{id}", rt.getTool)
	mux.HandleFunc("POST /api/convert/{tool}", rt.convert)
	mux.HandleFunc("GET /api/download/{filename}", rt.download)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}

	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(handler, rt.cfg.CORSAllowedOrigins)
	handler = recoveryMiddleware(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "file toolbox API",
		"version": serviceVersion,
		"health":  "/api/health",
		"tools":   "/api/tools",
	})
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "service is running",
		"version": serviceVersion,
	})
}

func (rt *Router) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": rt.catalog.Categories()})
}

func (rt *Router) getTool(w http.ResponseWriter, r *http.Request) {
	tool, err := rt.catalog.ToolByID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), publicMessage(err))
}
