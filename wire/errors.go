package wire

import (
	"errors"
	"fmt"
)

// DecodeErrorKind classifies message decoding errors.
type DecodeErrorKind int

const (
	// DecodeErrorEmpty indicates a message with no header byte.
	DecodeErrorEmpty DecodeErrorKind = iota
	// DecodeErrorTruncated indicates a payload shorter than its layout.
	DecodeErrorTruncated
	// DecodeErrorUnknownHeader indicates a header outside the closed set.
	DecodeErrorUnknownHeader
	// DecodeErrorInvalidValue indicates a field value outside its enumeration.
	DecodeErrorInvalidValue
	// DecodeErrorWrongHeader indicates a decoder applied to the wrong message kind.
	DecodeErrorWrongHeader
)

// String returns the kind name used in logs.
func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeErrorEmpty:
		return "empty"
	case DecodeErrorTruncated:
		return "truncated"
	case DecodeErrorUnknownHeader:
		return "unknown_header"
	case DecodeErrorInvalidValue:
		return "invalid_value"
	case DecodeErrorWrongHeader:
		return "wrong_header"
	default:
		return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
	}
}

// DecodeError represents a malformed message.
// Decode errors are never fatal to a connection; the owner reports and moves on.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// DecodeErrorKindOf returns the kind of a wrapped *DecodeError.
func DecodeErrorKindOf(err error) (DecodeErrorKind, bool) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr.Kind, true
	}
	return 0, false
}

func truncated(what string, got, want int) error {
	return &DecodeError{
		Kind: DecodeErrorTruncated,
		Msg:  fmt.Sprintf("%s payload is %d bytes, want %d", what, got, want),
	}
}
