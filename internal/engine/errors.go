package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingField is matched by every MissingFieldError.
	ErrMissingField = errors.New("missing field")
	// ErrFormatMismatch is matched by every FormatMismatchError.
	ErrFormatMismatch = errors.New("log format mismatch")
)

// MissingFieldError reports a required field absent from a line.
type MissingFieldError struct {
	Line  int
	Field string // physical column name
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("parse error on line %d, field %q", e.Line, e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// FormatMismatchError reports a first line that lacks the configured
// address field names.
type FormatMismatchError struct {
	Line   int
	Fields []string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("line %d does not contain the field names %s; check the log format options or disable the check",
		e.Line, strings.Join(e.Fields, ", "))
}

func (e *FormatMismatchError) Unwrap() error {
	return ErrFormatMismatch
}

// LineError wraps a decode failure with its line number.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}
