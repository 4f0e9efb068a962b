// Package domainerrors defines coded errors shared by services, stores and
// transports. Services return these so handlers can map them to responses
// without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeUnauthorized means the caller is known but lacks the role or
	// identity the operation requires.
	CodeUnauthorized Code = "unauthorized"
	// CodeUnauthenticated means no verified identity accompanied the call.
	CodeUnauthenticated Code = "unauthenticated"
	// CodeInvalidState means the record is not in a state that permits the operation.
	CodeInvalidState Code = "invalid_state"
	// CodeWrongAmount means a deposit did not match the required amount exactly.
	CodeWrongAmount Code = "wrong_amount"
	// CodeNotFound means the referenced record does not exist.
	CodeNotFound Code = "not_found"
	// CodeAlreadyFrozen and CodeNotFrozen report freeze toggle misuse.
	CodeAlreadyFrozen Code = "already_frozen"
	CodeNotFrozen     Code = "not_frozen"
	// CodeInsufficientEscrow should be unreachable while invariants hold.
	CodeInsufficientEscrow Code = "insufficient_escrow"

	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal"
)

// Error carries a code, a human readable reason and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ReasonOf returns the outermost human readable reason without the cause.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code onto an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeInvalidState, CodeAlreadyFrozen, CodeNotFrozen, CodeConflict, CodeInsufficientEscrow:
		return http.StatusConflict
	case CodeWrongAmount:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
