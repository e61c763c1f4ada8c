package orchestrator

import (
	"strings"

	"inferd/pkg/types"
)

// Attempt records one failed provider attempt during dispatch.
type Attempt struct {
	ProviderID string
	Reason     string
}

// Candidate is the best rejected result when consensus was required but
// not reached.
type Candidate struct {
	ProviderID string
	Text       string
	Confidence float64
}

// exhaustedError is returned when every fallback attempt failed. It names
// every provider tried and its individual failure reason, never a generic
// message.
type exhaustedError struct {
	attempts []Attempt
	best     *Candidate
}

func (e exhaustedError) Error() string {
	if len(e.attempts) == 0 {
		return "exhausted: no providers registered"
	}
	var b strings.Builder
	b.WriteString("exhausted after ")
	for i, a := range e.attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(a.ProviderID)
		b.WriteString(": ")
		b.WriteString(a.Reason)
	}
	return b.String()
}

// ErrExhausted constructs an exhaustedError from the recorded attempts.
func ErrExhausted(attempts []Attempt) error { return exhaustedError{attempts: attempts} }

// ErrExhaustedWithCandidate carries the best low-confidence candidate from
// a failed consensus round alongside the attempt record.
func ErrExhaustedWithCandidate(attempts []Attempt, best *Candidate) error {
	return exhaustedError{attempts: attempts, best: best}
}

// IsExhausted reports whether err is an exhausted-fallback failure.
func IsExhausted(err error) bool {
	_, ok := err.(exhaustedError)
	return ok
}

// AttemptsOf extracts the per-provider attempt record from an exhausted
// error, in wire form. Nil for any other error.
func AttemptsOf(err error) []types.AttemptError {
	e, ok := err.(exhaustedError)
	if !ok {
		return nil
	}
	out := make([]types.AttemptError, 0, len(e.attempts))
	for _, a := range e.attempts {
		out = append(out, types.AttemptError{ProviderID: a.ProviderID, Reason: a.Reason})
	}
	return out
}

// BestCandidateOf extracts the low-confidence candidate from a failed
// consensus round, if any.
func BestCandidateOf(err error) *Candidate {
	e, ok := err.(exhaustedError)
	if !ok {
		return nil
	}
	return e.best
}

// invalidRegistrationError signals a malformed or duplicate registration.
type invalidRegistrationError struct{ msg string }

func (e invalidRegistrationError) Error() string { return e.msg }

// ErrInvalidRegistration constructs an invalidRegistrationError.
func ErrInvalidRegistration(msg string) error { return invalidRegistrationError{msg: msg} }

// IsInvalidRegistration reports whether err indicates a bad registration.
func IsInvalidRegistration(err error) bool {
	_, ok := err.(invalidRegistrationError)
	return ok
}

// unknownProviderError signals an operation addressed to an unregistered provider.
type unknownProviderError struct{ id string }

func (e unknownProviderError) Error() string { return "unknown provider: " + e.id }

// ErrUnknownProvider constructs an unknownProviderError.
func ErrUnknownProvider(id string) error { return unknownProviderError{id: id} }

// IsUnknownProvider reports whether err indicates an unregistered provider id.
func IsUnknownProvider(err error) bool {
	_, ok := err.(unknownProviderError)
	return ok
}
