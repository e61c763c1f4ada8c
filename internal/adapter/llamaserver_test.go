package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inferd/pkg/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Adapter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewLlamaServer("llama", srv.URL, "", time.Second)
}

func TestCompleteSuccess(t *testing.T) {
	var gotReq completionRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]string{{"text": "four"}},
		})
	}))
	defer srv.Close()

	a := NewLlamaServer("llama", srv.URL, "sk-test", time.Second)
	res, err := a.Complete(context.Background(), "2+2?", types.CompletionOptions{
		MaxTokens:   32,
		Temperature: 0.2,
		Stop:        []string{"\n"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "four" {
		t.Fatalf("text=%q", res.Text)
	}
	if res.Confidence != NoConfidence {
		t.Fatalf("server backends report no confidence, got %v", res.Confidence)
	}
	if gotReq.Prompt != "2+2?" || gotReq.MaxTokens != 32 || gotReq.Stream {
		t.Fatalf("request payload wrong: %+v", gotReq)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header=%q", gotAuth)
	}
}

func TestCompleteBackendDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	a := NewLlamaServer("llama", url, "", time.Second)
	_, err := a.Complete(context.Background(), "x", types.CompletionOptions{})
	if !IsBackendUnavailable(err) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestCompleteStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"503 is unavailable", http.StatusServiceUnavailable, IsBackendUnavailable},
		{"500 is request failed", http.StatusInternalServerError, IsRequestFailed},
		{"400 is request failed", http.StatusBadRequest, IsRequestFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			_, err := a.Complete(context.Background(), "x", types.CompletionOptions{})
			if err == nil || !tc.check(err) {
				t.Fatalf("wrong error class: %v", err)
			}
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})
	_, err := a.Complete(context.Background(), "x", types.CompletionOptions{})
	if !IsInvalidResponse(err) {
		t.Fatalf("expected InvalidResponse, got %v", err)
	}
}

func TestCompleteMalformedBody(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	_, err := a.Complete(context.Background(), "x", types.CompletionOptions{})
	if !IsInvalidResponse(err) {
		t.Fatalf("expected InvalidResponse, got %v", err)
	}
}

func TestCompleteContextCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Complete(ctx, "x", types.CompletionOptions{})
	if err != context.DeadlineExceeded {
		t.Fatalf("caller deadline should surface as context error, got %v", err)
	}
}

func TestCheckHealth(t *testing.T) {
	healthy := true
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	if !a.CheckHealth(context.Background()) {
		t.Fatal("expected healthy")
	}
	healthy = false
	if a.CheckHealth(context.Background()) {
		t.Fatal("expected unhealthy")
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	a := NewLlamaServer("llama", url, "", time.Second)
	if a.CheckHealth(context.Background()) {
		t.Fatal("unreachable server must report unhealthy")
	}
}

func TestListModels(t *testing.T) {
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "tinyllama-q4", "created": created.Unix()},
				{"id": "phi-3-mini"},
			},
		})
	})
	records, err := a.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.ID != "tinyllama-q4" || first.ProviderID != "llama" || first.Status != types.ModelAvailable {
		t.Fatalf("unexpected record %+v", first)
	}
	if !first.LastModified.Equal(created) {
		t.Fatalf("created timestamp not mapped: %v", first.LastModified)
	}
	if !records[1].LastModified.IsZero() {
		t.Fatalf("missing created should leave LastModified zero: %v", records[1].LastModified)
	}
}

func TestListModelsServerError(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := a.ListModels(context.Background()); !IsRequestFailed(err) {
		t.Fatalf("expected RequestFailed, got %v", err)
	}
}

func TestMutationsUnsupported(t *testing.T) {
	a := NewLlamaServer("llama", "http://127.0.0.1:0", "", time.Second)
	ctx := context.Background()
	for name, op := range map[string]func(context.Context, string) (types.OperationResult, error){
		"download": a.DownloadModel,
		"delete":   a.DeleteModel,
		"update":   a.UpdateModel,
	} {
		if _, err := op(ctx, "m"); !IsUnsupportedOperation(err) {
			t.Fatalf("%s should be unsupported, got %v", name, err)
		}
	}
}
