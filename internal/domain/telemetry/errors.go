package telemetry

import "fmt"

// ValidationError rejects a payload with a stable machine-readable reason.
// These are user-caused, never retried, and surfaced as 4xx.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ErrMalformedRequest covers bodies that do not decode to a JSON object at
// all. Field-level problems get one of the specific reasons below.
var ErrMalformedRequest = &ValidationError{Reason: "malformed_request"}

func errMissingField(name string) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf("missing_field(%s)", name)}
}

func errInvalidType(name string) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf("invalid_type(%s)", name)}
}

func errInvalidEnum(name, value string) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf("invalid_enum(%s,%s)", name, value)}
}

func errNotFinite(name string) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf("not_finite_number(%s)", name)}
}
