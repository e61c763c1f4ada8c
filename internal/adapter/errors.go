package adapter

// backendUnavailableError signals that a backend has no usable model loaded
// so the orchestrator can advance its fallback chain (503 mapping).
type backendUnavailableError struct{ msg string }

func (e backendUnavailableError) Error() string { return "backend unavailable: " + e.msg }

// ErrBackendUnavailable constructs a backendUnavailableError.
func ErrBackendUnavailable(msg string) error { return backendUnavailableError{msg: msg} }

// IsBackendUnavailable reports whether err indicates a backend with no usable model.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(backendUnavailableError)
	return ok
}

// invalidResponseError signals malformed or empty backend output.
type invalidResponseError struct{ msg string }

func (e invalidResponseError) Error() string { return "invalid response: " + e.msg }

// ErrInvalidResponse constructs an invalidResponseError.
func ErrInvalidResponse(msg string) error { return invalidResponseError{msg: msg} }

// IsInvalidResponse reports whether err indicates malformed backend output.
func IsInvalidResponse(err error) bool {
	_, ok := err.(invalidResponseError)
	return ok
}

// requestFailedError signals a backend-side runtime fault.
type requestFailedError struct{ msg string }

func (e requestFailedError) Error() string { return "request failed: " + e.msg }

// ErrRequestFailed constructs a requestFailedError.
func ErrRequestFailed(msg string) error { return requestFailedError{msg: msg} }

// IsRequestFailed reports whether err indicates a backend-side runtime fault.
func IsRequestFailed(err error) bool {
	_, ok := err.(requestFailedError)
	return ok
}

// unsupportedOperationError signals a catalog mutation the provider cannot
// perform (e.g., backends with manual model management).
type unsupportedOperationError struct{ msg string }

func (e unsupportedOperationError) Error() string { return "unsupported operation: " + e.msg }

// ErrUnsupportedOperation constructs an unsupportedOperationError.
func ErrUnsupportedOperation(msg string) error { return unsupportedOperationError{msg: msg} }

// IsUnsupportedOperation reports whether err indicates an unsupported catalog mutation.
func IsUnsupportedOperation(err error) bool {
	_, ok := err.(unsupportedOperationError)
	return ok
}

// Retryable reports whether err should advance the fallback chain rather
// than surface immediately. Invalid responses retry too: a different
// backend may well produce usable output.
func Retryable(err error) bool {
	return IsBackendUnavailable(err) || IsRequestFailed(err) || IsInvalidResponse(err)
}
