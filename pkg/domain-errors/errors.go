// Package domainerrors provides code-carrying errors shared across all
// engine services. Services attach a Code so transports can translate
// failures without string matching, and so callers can distinguish
// expected control-flow signals (approval_pending) from real faults.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	// Generic codes.
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal"

	// Lifecycle taxonomy. These are part of the public contract of the
	// engine: callers branch on them.
	CodeIllegalTransition  Code = "illegal_transition"
	CodeApprovalPending    Code = "approval_pending"
	CodeOutOfOrder         Code = "out_of_order"
	CodeSignatureRejected  Code = "signature_rejected"
	CodeTerminalState      Code = "terminal_state"
	CodeTrainingRequired   Code = "training_required"
	CodeAllocationConflict Code = "allocation_conflict"
	CodeNoLongerPending    Code = "no_longer_pending"
	CodeRetentionActive    Code = "retention_active"
)

// Error is a domain error with a stable code and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// As finds the first domain error in err's chain.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// CodeOf extracts the domain code from err, or CodeInternal when err is
// not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeTrainingRequired, CodeTerminalState, CodeRetentionActive:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeIllegalTransition, CodeOutOfOrder, CodeNoLongerPending, CodeAllocationConflict:
		return http.StatusConflict
	case CodeApprovalPending:
		return http.StatusAccepted
	case CodeSignatureRejected:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
