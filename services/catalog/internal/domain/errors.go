package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by stores and services. Callers test with errors.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrInvalid     = errors.New("invalid input")
	ErrUnavailable = errors.New("temporarily unavailable")
)

// Invalid marks err as bad input while keeping its message.
func Invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalid, err)
}
