package types

import "time"

// ModelStatus describes the install state of a model on its provider.
type ModelStatus string

const (
	ModelAvailable    ModelStatus = "available"
	ModelDownloading  ModelStatus = "downloading"
	ModelNotInstalled ModelStatus = "not-installed"
	ModelError        ModelStatus = "error"
)

// ModelRecord represents one model as reported by a provider's backend.
type ModelRecord struct {
	// Stable identifier for the model.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Provider that owns this model.
	// example: llamacpp
	ProviderID string `json:"provider_id" example:"llamacpp"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	DisplayName string `json:"display_name" example:"TinyLlama (Q4)"`
	// Size of the model artifact in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes" example:"668788096"`
	// Install state on the owning provider.
	// example: available
	Status ModelStatus `json:"status" example:"available"`
	// Capability tags (e.g., chat, completion, embedding).
	// example: ["completion","chat"]
	Capabilities []string `json:"capabilities,omitempty" example:"[\"completion\",\"chat\"]"`
	// Last modification time reported by the provider.
	LastModified time.Time `json:"last_modified,omitempty"`
}

// HasCapability reports whether the record carries the given capability tag.
func (m ModelRecord) HasCapability(tag string) bool {
	for _, c := range m.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// SortKey identifies a sortable ModelRecord field.
type SortKey string

const (
	SortByName         SortKey = "name"
	SortBySize         SortKey = "size"
	SortByLastModified SortKey = "last_modified"
	SortByProvider     SortKey = "provider"
)

// ModelFilter narrows and orders the aggregate model listing.
// Zero values mean "no constraint".
type ModelFilter struct {
	ProviderID string      `json:"provider_id,omitempty"`
	Status     ModelStatus `json:"status,omitempty"`
	Capability string      `json:"capability,omitempty"`
	// Substring match against ID and DisplayName (case-insensitive).
	NameContains string  `json:"name_contains,omitempty"`
	SortBy       SortKey `json:"sort_by,omitempty"`
	Descending   bool    `json:"descending,omitempty"`
}

// OperationResult is the outcome of a catalog mutation (download/delete/update).
type OperationResult struct {
	// Whether the operation succeeded.
	// example: true
	Success bool `json:"success" example:"true"`
	// Human-readable outcome description.
	// example: model tinyllama-q4 downloaded
	Message string `json:"message" example:"model tinyllama-q4 downloaded"`
	// Error detail when Success is false.
	Error string `json:"error,omitempty"`
}

// HealthState describes the last known liveness of a registered adapter.
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)
