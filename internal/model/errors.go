package model

import "errors"

var (
	// ErrNotFound is returned when an entry id is unknown.
	ErrNotFound = errors.New("entry not found")
	// ErrAlreadyClosed is returned when closing a terminal entry.
	ErrAlreadyClosed = errors.New("entry already closed")
)

// ValidationError reports malformed input rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
