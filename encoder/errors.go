package encoder

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidScale        = errors.New("encoder: scale must be at least 1")
	ErrInvalidBounds       = errors.New("encoder: min bound above max bound")
	ErrNilPin              = errors.New("encoder: nil pin")
	ErrPriorityUnsupported = errors.New("encoder: interrupt priority not supported")
)

// RegistrationError reports a pin whose edge interrupt could not be armed,
// including after the soft priority fallback.
type RegistrationError struct {
	Pin string
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("encoder: register pin %s: %v", e.Pin, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
