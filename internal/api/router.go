// Package api exposes the orchestrator over HTTP and MCP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/aether/internal/orchestrator"
	"github.com/kalambet/aether/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps are the collaborators of the HTTP handler.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *storage.Store
	// Token guards the management routes.
	Token     string
	RateLimit RateLimitConfig
	Logger    *slog.Logger
}

// NewHandler returns the full HTTP surface: public request routes,
// bearer-protected management routes, health and metrics.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "api")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(Metrics)

	r.Get("/health", handleHealth(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimit(deps.RateLimit))

		r.Post("/chat", handleChat(deps))
		r.Post("/summarize", handleSummarize(deps))
		r.Post("/suggest", handleSuggest(deps))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))

			r.Post("/pages", handleCreatePage(deps))
			r.Get("/pages", handleListPages(deps))
			r.Get("/pages/{id}", handleGetPage(deps))
			r.Delete("/pages/{id}", handleDeletePage(deps))
			r.Get("/sessions", handleListSessions(deps))
			r.Get("/sessions/{id}", handleGetSession(deps))
			r.Delete("/sessions/{id}", handleDeleteSession(deps))
			r.Delete("/cache", handleClearCache(deps))
		})
	})

	return r
}

type healthResponse struct {
	Status    string         `json:"status"`
	Cache     string         `json:"cache"`
	Providers []string       `json:"providers"`
	Store     *storage.Stats `json:"store,omitempty"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			Cache:     deps.Orchestrator.CacheMode(),
			Providers: deps.Orchestrator.Providers(),
		}
		code := http.StatusOK
		if deps.Store != nil {
			st, err := deps.Store.Stats()
			if err != nil {
				deps.Logger.Error("health: reading store stats", "error", err)
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			} else {
				resp.Store = &st
			}
		}
		writeJSON(w, code, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
