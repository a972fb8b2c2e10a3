// Package errors provides domain errors with stable machine-readable codes.
// Services wrap lower-level failures with a code and a short message; the
// transport layer maps codes to HTTP statuses so handlers never invent their
// own status logic.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and for the HTTP error envelope.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// CodeConfiguration marks a malformed or missing operator-supplied input
	// (registry snapshot, public key). Fatal; never defaulted around.
	CodeConfiguration Code = "configuration"

	// CodeCoverageGap marks a required policy path with no observed coverage,
	// or a governed action with zero registry entries.
	CodeCoverageGap Code = "coverage_gap"

	// CodeIntegrity marks a hash mismatch, broken chain link, or bad
	// signature. Never auto-repaired.
	CodeIntegrity Code = "integrity"

	// CodePersistence marks a receipt or ledger write failure. Always
	// propagated to the caller.
	CodePersistence Code = "persistence"
)

// Error carries a code alongside the message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err returns
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ToHTTPStatus maps a code to the status the transport layer should return.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeConflict:
		return http.StatusConflict
	case CodeConfiguration, CodeCoverageGap, CodeIntegrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
