package batch

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of all build-time validation failures.
var ErrValidation = errors.New("batch: validation failed")

var (
	// ErrInvalidMethod is returned when a change-set method is not one of
	// PUT, POST, DELETE, MERGE or PATCH.
	ErrInvalidMethod = fmt.Errorf("%w: method must be one of PUT, POST, DELETE, MERGE, PATCH", ErrValidation)

	// ErrMissingMethodOrURI is returned by Build when method or uri is unset.
	ErrMissingMethodOrURI = fmt.Errorf("%w: method and uri are required", ErrValidation)

	// ErrClosed is returned when appending to, or reading again from, a
	// BodyBuilder whose content has already been read out.
	ErrClosed = errors.New("batch: body builder is closed")
)

// IOError wraps an I/O failure that occurred while assembling or reading
// batch content.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("batch: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioError(op string, err error) error {
	return &IOError{Op: op, Err: err}
}

// UnsupportedEntityError reports a response entity of an unrecognised type.
type UnsupportedEntityError struct {
	Type string
}

func (e *UnsupportedEntityError) Error() string {
	return "batch: error on reading request content for entity type: " + e.Type
}

// SyntaxError reports a malformed batch payload.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("batch: line %d: %s", e.Line, e.Msg)
	}
	return "batch: " + e.Msg
}

func syntaxErrorf(line int, format string, args ...any) error {
	return &SyntaxError{Line: line, Msg: fmt.Sprintf(format, args...)}
}
