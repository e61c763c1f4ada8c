package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"inferd/pkg/types"
)

// llamaServer implements Adapter by talking to a running llama.cpp (or any
// OpenAI-compatible) server over HTTP. Model management on such servers is
// manual, so the catalog mutations report UnsupportedOperation.
type llamaServer struct {
	providerID string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewLlamaServer constructs a server-backed adapter. connectTimeout bounds
// dialing only; request deadlines come from the caller's context.
func NewLlamaServer(providerID, baseURL, apiKey string, connectTimeout time.Duration) Adapter {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &llamaServer{
		providerID: providerID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

// completionRequest is the payload for /v1/completions (non-streaming).
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

func (a *llamaServer) Complete(ctx context.Context, prompt string, opts types.CompletionOptions) (Result, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		TopK:        opts.TopK,
		Stop:        opts.Stop,
		Stream:      false,
	})
	if err != nil {
		return Result{}, ErrRequestFailed("encode request: " + err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, ErrRequestFailed(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, ErrBackendUnavailable(err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return Result{}, ErrBackendUnavailable(fmt.Sprintf("%s returned 503", a.providerID))
	case resp.StatusCode/100 != 2:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, ErrRequestFailed(fmt.Sprintf("%s returned %d: %s", a.providerID, resp.StatusCode, strings.TrimSpace(string(b))))
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, ErrInvalidResponse("decode: " + err.Error())
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Text) == "" {
		return Result{}, ErrInvalidResponse("empty completion")
	}
	return Result{Text: out.Choices[0].Text, Confidence: NoConfidence}, nil
}

func (a *llamaServer) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// modelList is the /v1/models shape shared by OpenAI-compatible servers.
type modelList struct {
	Data []struct {
		ID      string `json:"id"`
		Created int64  `json:"created"`
	} `json:"data"`
}

func (a *llamaServer) ListModels(ctx context.Context) ([]types.ModelRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, ErrRequestFailed(err.Error())
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, ErrBackendUnavailable(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, ErrRequestFailed(fmt.Sprintf("%s returned %d listing models", a.providerID, resp.StatusCode))
	}
	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, ErrInvalidResponse("decode model list: " + err.Error())
	}
	records := make([]types.ModelRecord, 0, len(list.Data))
	for _, m := range list.Data {
		rec := types.ModelRecord{
			ID:           m.ID,
			ProviderID:   a.providerID,
			DisplayName:  m.ID,
			Status:       types.ModelAvailable,
			Capabilities: []string{"completion"},
		}
		if m.Created > 0 {
			rec.LastModified = time.Unix(m.Created, 0)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *llamaServer) DownloadModel(ctx context.Context, modelID string) (types.OperationResult, error) {
	return types.OperationResult{}, ErrUnsupportedOperation(a.providerID + " manages models manually; place the file in the server's model directory")
}

func (a *llamaServer) DeleteModel(ctx context.Context, modelID string) (types.OperationResult, error) {
	return types.OperationResult{}, ErrUnsupportedOperation(a.providerID + " manages models manually; remove the file from the server's model directory")
}

func (a *llamaServer) UpdateModel(ctx context.Context, modelID string) (types.OperationResult, error) {
	return types.OperationResult{}, ErrUnsupportedOperation(a.providerID + " manages models manually")
}
