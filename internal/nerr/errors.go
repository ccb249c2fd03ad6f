// Package nerr provides the daemon's error taxonomy: a structured error
// carrying an HTTP status, so every layer from the lifecycle engine down
// to the HTTP surface can propagate a single error type that renders
// itself as `{status, msg}` JSON at the boundary.
package nerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code names one of the daemon's error classes.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeInternal     Code = "INTERNAL"
	CodeInterrupted  Code = "INTERRUPTED"
)

// Error is the structured error every package in this module returns
// instead of a bare error, so the HTTP surface can always recover a
// status code and message.
type Error struct {
	Code       Code                   `json:"code"`
	Msg        string                 `json:"msg"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches one piece of structured context to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds an Error with no wrapped cause.
func New(code Code, status int, msg string) *Error {
	return &Error{Code: code, Msg: msg, HTTPStatus: status}
}

// Wrap builds an Error around an existing cause.
func Wrap(code Code, status int, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, HTTPStatus: status, Err: err}
}

// NotFound reports a missing object, identified by kind and key.
func NotFound(kind, key string) *Error {
	return New(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s %q not found", kind, key)).
		WithDetail("kind", kind).WithDetail("key", key)
}

// Conflict reports a state precondition violation (e.g. deleting a
// non-empty namespace, deleting a base image with live snapshots).
func Conflict(msg string) *Error {
	return New(CodeConflict, http.StatusConflict, msg)
}

// BadRequest reports a malformed or invalid payload: schema validation
// failures, a rejected auto_remove, an unparseable resource kind.
func BadRequest(msg string) *Error {
	return New(CodeBadRequest, http.StatusBadRequest, msg)
}

// BadRequestf is BadRequest with fmt.Sprintf-style formatting.
func BadRequestf(format string, args ...interface{}) *Error {
	return BadRequest(fmt.Sprintf(format, args...))
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(msg string) *Error {
	return New(CodeUnauthorized, http.StatusUnauthorized, msg)
}

// Internal wraps an engine/store failure that the caller cannot act on.
func Internal(msg string, err error) *Error {
	return Wrap(CodeInternal, http.StatusInternalServerError, msg, err)
}

// Interrupted reports an aborted in-flight operation: a non-zero init
// container exit, or a wait-stream error.
func Interrupted(msg string) *Error {
	return New(CodeInterrupted, http.StatusInternalServerError, msg)
}

// As extracts an *Error from an error chain, if present.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatus returns the HTTP status code for err, defaulting to 500 for
// anything that is not an *Error.
func HTTPStatus(err error) int {
	if e := As(err); e != nil {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
