package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedTxType is returned when an EIP-2718 envelope or typed data
	// message does not carry the seismic transaction type.
	ErrUnexpectedTxType = errors.New("unexpected transaction type")

	// ErrTrailingBytes is returned when input remains after the last field.
	ErrTrailingBytes = errors.New("trailing bytes after transaction fields")

	// ErrAmbiguousRequest is returned when a request payload structurally
	// matches more than one request shape.
	ErrAmbiguousRequest = errors.New("ambiguous request shape")

	// ErrUnmatchedRequest is returned when a request payload matches none of
	// the accepted request shapes.
	ErrUnmatchedRequest = errors.New("unmatched request shape")

	ErrMissingField = errors.New("missing required field")
)

// FieldDecodeError names the transaction field whose decoding failed.
type FieldDecodeError struct {
	Field string
	Err   error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("failed to decode field %q: %v", e.Field, e.Err)
}

func (e *FieldDecodeError) Unwrap() error {
	return e.Err
}

func fieldErr(field string, err error) error {
	return &FieldDecodeError{Field: field, Err: err}
}
