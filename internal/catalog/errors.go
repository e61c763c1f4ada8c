package catalog

// providerNotFoundError signals a catalog operation addressed to a provider
// that is not registered (404 mapping).
type providerNotFoundError struct{ id string }

func (e providerNotFoundError) Error() string { return "provider not found: " + e.id }

// ErrProviderNotFound constructs a providerNotFoundError.
func ErrProviderNotFound(id string) error { return providerNotFoundError{id: id} }

// IsProviderNotFound reports whether err indicates an unknown provider id.
func IsProviderNotFound(err error) bool {
	_, ok := err.(providerNotFoundError)
	return ok
}
