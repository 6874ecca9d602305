package domain

// ValidationError reports malformed input configuration: a missing or
// contradictory time range, an unknown detection method. It is the only
// failure surfaced to the caller before any I/O; everything downstream
// degrades to a typed status instead.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError builds a ValidationError with the given reason.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}
