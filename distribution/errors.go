package distribution

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when the engine refuses its input. Nothing is
// computed when this error is returned.
var ErrInvalidInput = errors.New("invalid distribution input")

// InputError names the offending field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid distribution input: %s %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
