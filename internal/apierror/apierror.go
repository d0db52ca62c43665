// Package apierror classifies failures so handlers can map them to HTTP
// statuses while the underlying cause is only ever logged.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation       Kind = "validation"
	KindMethodNotAllowed Kind = "method_not_allowed"
	KindTooLarge         Kind = "too_large"
	KindUpstream         Kind = "upstream"
)

// MethodNotAllowedMessage is the fixed body for unsupported methods.
const MethodNotAllowedMessage = "Method not allowed"

// Error annotates a failure with its kind and where it occurred.
// Message is safe to show to callers; Cause is not.
type Error struct {
	Kind      Kind
	Op        string
	RequestID string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	prefix := fmt.Sprintf("[%s:%s]", e.Kind, e.Op)
	if e.RequestID != "" {
		prefix = fmt.Sprintf("[%s:%s request_id=%s]", e.Kind, e.Op, e.RequestID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func TooLarge(op, message string) *Error {
	return &Error{Kind: KindTooLarge, Op: op, Message: message}
}

// Upstream wraps a storage or model failure. A nil err yields nil.
func Upstream(op, requestID, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUpstream, Op: op, RequestID: requestID, Message: message, Cause: err}
}

// As extracts the first *Error in the chain. Unclassified errors are
// reported as upstream failures with the given fallback message.
func As(err error, fallback string) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: KindUpstream, Op: "unknown", Message: fallback, Cause: err}
}

// IsKind reports whether any error in the chain has the provided kind.
func IsKind(err error, kind Kind) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind == kind
	}
	return false
}
