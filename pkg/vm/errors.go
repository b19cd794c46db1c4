package vm

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrInvalidBundle     = errors.New("invalid instruction bundle")
	ErrAddressRange      = errors.New("address out of range")
	ErrBadQuery          = errors.New("unknown introspection query")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrUnknownAction     = errors.New("unknown device action")
	ErrBadNumber         = errors.New("malformed number")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrNoInterpreter     = errors.New("image has no interpret word")

	// Image errors
	ErrImageSize      = errors.New("image file size is not a multiple of the cell size")
	ErrImageTooLarge  = errors.New("image does not fit in memory")
	ErrBadNameOffset  = errors.New("dictionary name offset must be 3 or 4")
	ErrSnapshotFormat = errors.New("unsupported snapshot format")
)

// StackError reports which stack faulted.
type StackError struct {
	Stack string
	Err   error
}

func (e *StackError) Error() string {
	return fmt.Sprintf("%s stack: %v", e.Stack, e.Err)
}

func (e *StackError) Unwrap() error {
	return e.Err
}

// Fault is a fatal interpreter error together with the location it
// occurred at.
type Fault struct {
	IP     Cell
	Bundle Cell
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at %d (bundle %d): %v", f.IP, f.Bundle, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// ImageError is returned when an image file cannot be loaded.
type ImageError struct {
	Path string
	Err  error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s: %v", e.Path, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
