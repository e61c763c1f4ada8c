package orchestrator

// Event names published by the orchestrator.
const (
	EventAdapterRegistered   = "adapter_registered"
	EventAdapterUnregistered = "adapter_unregistered"
	EventAttemptFailed       = "attempt_failed"
	EventDispatchExhausted   = "dispatch_exhausted"
	EventHealthChanged       = "health_changed"
)

// Event represents an orchestrator lifecycle event.
// Minimal and stable: name + provider id and optional fields via key/values.
type Event struct {
	Name       string
	ProviderID string
	Fields     map[string]any
}

// EventPublisher receives events from the orchestrator. Implementations
// should be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
