// Package adapter defines the capability contract every inference backend
// must implement to participate in request orchestration, plus the shared
// error taxonomy the orchestration layer dispatches on.
package adapter

import (
	"context"

	"inferd/pkg/types"
)

// Result is a single completion produced by a backend.
type Result struct {
	Text string
	// Confidence is the backend-supplied score for the completion.
	// Negative means the backend does not score its output; callers
	// treat that as 1.0.
	Confidence float64
}

// NoConfidence marks a Result whose backend does not supply a score.
const NoConfidence = -1.0

// Adapter is the uniform operation set a backend exposes to the core.
// Implementations confine side effects to their own backend; the contract
// defines no shared mutable state between adapters.
type Adapter interface {
	// Complete performs one synchronous completion. It fails with
	// ErrBackendUnavailable when no model is loaded, ErrInvalidResponse
	// when the backend returns empty or non-text output, and
	// ErrRequestFailed for any other backend-side fault.
	Complete(ctx context.Context, prompt string, opts types.CompletionOptions) (Result, error)

	// CheckHealth is a cheap liveness probe. It must not panic and
	// reports false on any internal failure.
	CheckHealth(ctx context.Context) bool

	// ListModels reports the models known to this backend.
	ListModels(ctx context.Context) ([]types.ModelRecord, error)

	// DownloadModel, DeleteModel and UpdateModel manage models on the
	// backend. Backends with manual model management fail with
	// ErrUnsupportedOperation; otherwise they return an OperationResult
	// with a human-readable message.
	DownloadModel(ctx context.Context, modelID string) (types.OperationResult, error)
	DeleteModel(ctx context.Context, modelID string) (types.OperationResult, error)
	UpdateModel(ctx context.Context, modelID string) (types.OperationResult, error)
}
