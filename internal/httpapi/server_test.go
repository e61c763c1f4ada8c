package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inferd/internal/adapter"
	"inferd/internal/catalog"
	"inferd/internal/orchestrator"
	"inferd/pkg/types"
)

// fakeService scripts Service responses per test.
type fakeService struct {
	processFn  func(ctx context.Context, prompt string, opts types.CompletionOptions) (orchestrator.Response, error)
	modelsFn   func(ctx context.Context, filter types.ModelFilter) ([]types.ModelRecord, error)
	downloadFn func(ctx context.Context, modelID, providerID string) (types.OperationResult, error)

	lastFilter   types.ModelFilter
	cacheCleared bool
	ready        bool
}

func (s *fakeService) ProcessRequest(ctx context.Context, prompt string, opts types.CompletionOptions) (orchestrator.Response, error) {
	if s.processFn != nil {
		return s.processFn(ctx, prompt, opts)
	}
	return orchestrator.Response{Text: "ok", ProviderID: "p"}, nil
}

func (s *fakeService) AllModels(ctx context.Context, filter types.ModelFilter) ([]types.ModelRecord, error) {
	s.lastFilter = filter
	if s.modelsFn != nil {
		return s.modelsFn(ctx, filter)
	}
	return nil, nil
}

func (s *fakeService) DownloadModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, modelID, providerID)
	}
	return types.OperationResult{Success: true, Message: "downloaded " + modelID}, nil
}

func (s *fakeService) DeleteModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return types.OperationResult{Success: true, Message: "deleted " + modelID}, nil
}

func (s *fakeService) UpdateModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return types.OperationResult{Success: true, Message: "updated " + modelID}, nil
}

func (s *fakeService) PerformanceMetrics() types.PerformanceMetrics {
	return types.PerformanceMetrics{RequestsPerSecond: 2.5, CacheHitRate: 0.5}
}

func (s *fakeService) ResourceUsage() types.ResourceUsage {
	return types.ResourceUsage{Memory: types.MemoryUsage{UsedMB: 1024}}
}

func (s *fakeService) ClearCaches() { s.cacheCleared = true }

func (s *fakeService) Status() types.StatusResponse {
	return types.StatusResponse{PrimaryProviderID: "p"}
}

func (s *fakeService) Ready() bool { return s.ready }

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCompleteHappyPath(t *testing.T) {
	svc := &fakeService{
		processFn: func(ctx context.Context, prompt string, opts types.CompletionOptions) (orchestrator.Response, error) {
			if prompt != "hello" {
				t.Fatalf("unexpected prompt %q", prompt)
			}
			if opts.MaxTokens != 64 {
				t.Fatalf("options not forwarded: %+v", opts)
			}
			return orchestrator.Response{Text: "hi", ProviderID: "llama", Cached: true}, nil
		},
	}
	w := doJSON(t, NewMux(svc), http.MethodPost, "/complete", `{"prompt":"hello","options":{"max_tokens":64}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.CompleteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "hi" || resp.ProviderID != "llama" || !resp.Cached {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCompleteValidation(t *testing.T) {
	h := NewMux(&fakeService{})

	// Missing content type
	req := httptest.NewRequest(http.MethodPost, "/complete", strings.NewReader(`{"prompt":"x"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("no content-type: status=%d", w.Code)
	}

	if w := doJSON(t, h, http.MethodPost, "/complete", `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/complete", `{"prompt":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank prompt: status=%d", w.Code)
	}
}

func TestCompleteErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"backend unavailable", adapter.ErrBackendUnavailable("down"), http.StatusServiceUnavailable},
		{"request failed", adapter.ErrRequestFailed("boom"), http.StatusBadGateway},
		{"invalid response", adapter.ErrInvalidResponse("junk"), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"exhausted", orchestrator.ErrExhausted([]orchestrator.Attempt{{ProviderID: "a", Reason: "down"}}), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{
				processFn: func(context.Context, string, types.CompletionOptions) (orchestrator.Response, error) {
					return orchestrator.Response{}, tc.err
				},
			}
			w := doJSON(t, NewMux(svc), http.MethodPost, "/complete", `{"prompt":"x"}`)
			if w.Code != tc.want {
				t.Fatalf("status=%d want=%d body=%s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestCompleteExhaustedCarriesAttempts(t *testing.T) {
	svc := &fakeService{
		processFn: func(context.Context, string, types.CompletionOptions) (orchestrator.Response, error) {
			return orchestrator.Response{}, orchestrator.ErrExhausted([]orchestrator.Attempt{
				{ProviderID: "a", Reason: "backend unavailable: down"},
				{ProviderID: "b", Reason: "confidence 0.30 below minimum 0.80"},
			})
		},
	}
	w := doJSON(t, NewMux(svc), http.MethodPost, "/complete", `{"prompt":"x"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", w.Code)
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Attempts) != 2 || resp.Attempts[0].ProviderID != "a" || resp.Attempts[1].ProviderID != "b" {
		t.Fatalf("attempt record missing or reordered: %+v", resp.Attempts)
	}
}

func TestModelsQueryFilter(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	w := doJSON(t, h, http.MethodGet, "/models?provider=llama&status=available&capability=completion&q=tiny&sort=size&order=desc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	f := svc.lastFilter
	if f.ProviderID != "llama" || f.Status != types.ModelAvailable || f.Capability != "completion" ||
		f.NameContains != "tiny" || f.SortBy != types.SortBySize || !f.Descending {
		t.Fatalf("filter not parsed: %+v", f)
	}

	if w := doJSON(t, h, http.MethodGet, "/models?sort=bogus", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad sort key: status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/models?order=sideways", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad order: status=%d", w.Code)
	}
}

func TestModelMutationRoutes(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	w := doJSON(t, h, http.MethodPost, "/models/llama/tiny/download", "")
	if w.Code != http.StatusOK {
		t.Fatalf("download: status=%d body=%s", w.Code, w.Body.String())
	}
	var res types.OperationResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Message != "downloaded tiny" {
		t.Fatalf("unexpected result %+v", res)
	}

	if w := doJSON(t, h, http.MethodDelete, "/models/llama/tiny", ""); w.Code != http.StatusOK {
		t.Fatalf("delete: status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/models/llama/tiny/update", ""); w.Code != http.StatusOK {
		t.Fatalf("update: status=%d", w.Code)
	}
}

func TestModelMutationUnsupportedSurfacesAdapterMessage(t *testing.T) {
	svc := &fakeService{
		downloadFn: func(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
			err := adapter.ErrUnsupportedOperation("models are managed on disk")
			return types.OperationResult{Message: err.Error()}, err
		},
	}
	w := doJSON(t, NewMux(svc), http.MethodPost, "/models/llama/tiny/download", "")
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d", w.Code)
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Error, "models are managed on disk") {
		t.Fatalf("adapter message lost: %q", resp.Error)
	}
}

func TestModelMutationUnknownProvider(t *testing.T) {
	svc := &fakeService{
		downloadFn: func(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
			return types.OperationResult{}, catalog.ErrProviderNotFound(providerID)
		},
	}
	w := doJSON(t, NewMux(svc), http.MethodPost, "/models/ghost/tiny/download", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Error, "provider not found: ghost") {
		t.Fatalf("error body does not name the provider: %q", resp.Error)
	}
}

func TestPerfAndResources(t *testing.T) {
	h := NewMux(&fakeService{})
	w := doJSON(t, h, http.MethodGet, "/perf", "")
	if w.Code != http.StatusOK {
		t.Fatalf("perf: status=%d", w.Code)
	}
	var perf types.PerformanceMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &perf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if perf.RequestsPerSecond != 2.5 || perf.CacheHitRate != 0.5 {
		t.Fatalf("unexpected perf %+v", perf)
	}

	w = doJSON(t, h, http.MethodGet, "/resources", "")
	if w.Code != http.StatusOK {
		t.Fatalf("resources: status=%d", w.Code)
	}
	var usage types.ResourceUsage
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if usage.Memory.UsedMB != 1024 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestCacheClear(t *testing.T) {
	svc := &fakeService{}
	w := doJSON(t, NewMux(svc), http.MethodPost, "/cache/clear", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if !svc.cacheCleared {
		t.Fatal("ClearCaches not invoked")
	}
}

func TestHealthAndReadiness(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	if w := doJSON(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before providers healthy: status=%d", w.Code)
	}
	svc.ready = true
	if w := doJSON(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz: status=%d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := doJSON(t, NewMux(&fakeService{}), http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header missing, got %q", got)
	}
}
