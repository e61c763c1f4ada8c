// Package httpapi exposes the orchestration layer over HTTP: completions,
// the aggregate model catalog, performance metrics and cache controls.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/orchestrator"
	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ProcessRequest(ctx context.Context, prompt string, opts types.CompletionOptions) (orchestrator.Response, error)
	AllModels(ctx context.Context, filter types.ModelFilter) ([]types.ModelRecord, error)
	DownloadModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error)
	DeleteModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error)
	UpdateModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error)
	PerformanceMetrics() types.PerformanceMetrics
	ResourceUsage() types.ResourceUsage
	ClearCaches()
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/complete", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.CompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(baseCtx, r.Context())
		defer cancel()
		if req.TimeoutMS > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
			defer tcancel()
		}

		start := time.Now()
		logRequestStart(r, "complete")
		resp, err := svc.ProcessRequest(ctx, req.Prompt, req.Options)
		if err != nil {
			if r.Context().Err() != nil || baseCtx.Err() != nil {
				return
			}
			status := statusForError(err)
			writeDispatchError(w, status, err)
			logRequestEnd(r, "complete", status, time.Since(start), err)
			return
		}
		writeJSON(w, http.StatusOK, types.CompleteResponse{
			Text:       resp.Text,
			ProviderID: resp.ProviderID,
			Cached:     resp.Cached,
		})
		logRequestEnd(r, "complete", http.StatusOK, time.Since(start), nil)
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFromQuery(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		models, err := svc.AllModels(r.Context(), filter)
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	mutate := func(op func(ctx context.Context, modelID, providerID string) (types.OperationResult, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			provider := chi.URLParam(r, "provider")
			model := chi.URLParam(r, "model")
			res, err := op(r.Context(), model, provider)
			if err != nil {
				// The result's message carries the adapter's own
				// explanation; surface it rather than a generic error.
				// Errors raised before any adapter was reached (unknown
				// provider) leave the result empty, so fall back to the
				// error itself.
				status := statusForError(err)
				msg := res.Message
				if msg == "" {
					msg = err.Error()
				}
				writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
				return
			}
			writeJSON(w, http.StatusOK, res)
		}
	}
	r.Post("/models/{provider}/{model}/download", mutate(svc.DownloadModel))
	r.Post("/models/{provider}/{model}/update", mutate(svc.UpdateModel))
	r.Delete("/models/{provider}/{model}", mutate(svc.DeleteModel))

	r.Get("/perf", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.PerformanceMetrics())
	})

	r.Get("/resources", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ResourceUsage())
	})

	r.Post("/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		svc.ClearCaches()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no healthy providers"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// filterFromQuery builds a ModelFilter from GET /models query parameters.
func filterFromQuery(r *http.Request) (types.ModelFilter, error) {
	q := r.URL.Query()
	f := types.ModelFilter{
		ProviderID:   q.Get("provider"),
		Status:       types.ModelStatus(q.Get("status")),
		Capability:   q.Get("capability"),
		NameContains: q.Get("q"),
	}
	switch sort := q.Get("sort"); sort {
	case "", string(types.SortByName):
		f.SortBy = types.SortByName
	case string(types.SortBySize), string(types.SortByLastModified), string(types.SortByProvider):
		f.SortBy = types.SortKey(sort)
	default:
		return f, &badQueryError{param: "sort", value: sort}
	}
	switch order := q.Get("order"); order {
	case "", "asc":
	case "desc":
		f.Descending = true
	default:
		return f, &badQueryError{param: "order", value: order}
	}
	return f, nil
}

type badQueryError struct{ param, value string }

func (e *badQueryError) Error() string { return "invalid " + e.param + " value: " + e.value }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
