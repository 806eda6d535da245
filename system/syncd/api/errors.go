package api

import (
	"fmt"
)

// Error is a protocol-level failure. Code is the client-facing error string
// (one of the ErrMsg constants) and Cause explains it.
type Error struct {
	Code  string
	Cause string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Cause)
	}
	return e.Code
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is implements the errors.Is interface for error matching.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	// Match by code if target has a code
	if t.Code != "" {
		return e.Code == t.Code
	}
	if t.Cause != "" {
		return e.Cause == t.Cause
	}
	return false
}

// Message converts e into the value written to the client.
func (e *Error) Message() *Message {
	return NewErrorMessage(e.Code, e.Cause)
}

// NewError creates an Error with the given code wrapping err. The cause is
// err's text.
func NewError(code string, err error) *Error {
	e := &Error{Code: code, Err: err}
	if err != nil {
		e.Cause = err.Error()
	}
	return e
}

// ErrMalformedHandshake is returned for a first value that is not a valid
// handshake. It is not reported to the client.
var ErrMalformedHandshake = &Error{Code: "malformed handshake"}
