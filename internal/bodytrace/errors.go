package bodytrace

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a required argument is missing or unusable
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBodyRead marks failures while reading a request body. The body is
	// considered lost once this happens.
	ErrBodyRead = errors.New("request body read failed")
)

// ReadError wraps an I/O failure that happened while reading a request body
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBodyRead, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Is reports ErrBodyRead as a match so callers can test with errors.Is.
func (e *ReadError) Is(target error) bool {
	return target == ErrBodyRead
}
