package types

// CompletionOptions carries sampling parameters for a completion request.
type CompletionOptions struct {
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Optional stop sequences. Generation stops when any sequence is matched.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty" example:"[\"\\n\\n\",\"END\"]"`
}

// CompleteRequest is the payload for POST /complete.
type CompleteRequest struct {
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Sampling options. Omitted fields use backend defaults.
	Options CompletionOptions `json:"options,omitempty"`
	// Optional per-request timeout in milliseconds (0 = policy default).
	// example: 30000
	TimeoutMS int `json:"timeout_ms,omitempty" example:"30000"`
}

// CompleteResponse is returned by POST /complete.
type CompleteResponse struct {
	// Generated completion text.
	// example: Salt wind over waves
	Text string `json:"text" example:"Salt wind over waves"`
	// Provider that ultimately served the request.
	// example: llamacpp
	ProviderID string `json:"provider_id" example:"llamacpp"`
	// Whether the response was served from the response cache.
	// example: false
	Cached bool `json:"cached" example:"false"`
}

// PerformanceMetrics is returned by GET /perf.
type PerformanceMetrics struct {
	// Requests per second over the trailing minute.
	// example: 4.2
	RequestsPerSecond float64 `json:"requests_per_second" example:"4.2"`
	// Mean request latency in milliseconds.
	// example: 812.5
	AverageLatencyMS float64 `json:"average_latency_ms" example:"812.5"`
	// Host memory in use, in MB.
	// example: 2048
	MemoryUsageMB int `json:"memory_usage_mb" example:"2048"`
	// Fraction of requests served from cache, 0..1.
	// example: 0.37
	CacheHitRate float64 `json:"cache_hit_rate" example:"0.37"`
}

// MemoryUsage describes host memory in MB.
type MemoryUsage struct {
	// example: 2048
	UsedMB int `json:"used_mb" example:"2048"`
	// example: 14336
	AvailableMB int `json:"available_mb" example:"14336"`
}

// CPUUsage describes host CPU load.
type CPUUsage struct {
	// Load as a percentage across all cores.
	// example: 42.5
	UsagePercent float64 `json:"usage_percent" example:"42.5"`
}

// ResourceUsage is returned by GET /resources.
type ResourceUsage struct {
	Memory MemoryUsage `json:"memory"`
	CPU    CPUUsage    `json:"cpu"`
	// Unix seconds of the underlying snapshot.
	// example: 1700000000
	SampledAtUnix int64 `json:"sampled_at_unix" example:"1700000000"`
}

// ProviderStatus summarizes one registered adapter for GET /status.
type ProviderStatus struct {
	// example: llamacpp
	ProviderID string `json:"provider_id" example:"llamacpp"`
	// Last known health of the adapter.
	// example: healthy
	Health HealthState `json:"health" example:"healthy"`
	// Last health check time (unix seconds, 0 = never checked).
	// example: 1700000000
	LastCheckedUnix int64 `json:"last_checked_unix,omitempty" example:"1700000000"`
	// Current tunable batch size for this provider's optimizer.
	// example: 512
	BatchSize int `json:"batch_size" example:"512"`
	// Current worker count for this provider's optimizer.
	// example: 4
	Workers int `json:"workers" example:"4"`
	// Entries currently held in this provider's response cache.
	// example: 17
	CacheEntries int `json:"cache_entries" example:"17"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Registered providers in dispatch preference order.
	Providers []ProviderStatus `json:"providers"`
	// Primary provider id from the fallback policy.
	// example: llamacpp
	PrimaryProviderID string `json:"primary_provider_id" example:"llamacpp"`
	// Uptime of the orchestrator in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// ModelsResponse wraps the aggregate model listing returned by GET /models.
type ModelsResponse struct {
	Models []ModelRecord `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Per-provider failure reasons when all fallbacks were exhausted.
	Attempts []AttemptError `json:"attempts,omitempty"`
}

// AttemptError records one failed provider attempt inside an exhausted dispatch.
type AttemptError struct {
	// example: llamacpp
	ProviderID string `json:"provider_id" example:"llamacpp"`
	// example: backend unavailable: no model loaded
	Reason string `json:"reason" example:"backend unavailable: no model loaded"`
}
