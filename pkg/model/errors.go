package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure returned by the core packages.
type ErrorKind string

const (
	KindPricingUnavailable        ErrorKind = "PRICING_UNAVAILABLE"
	KindExecutionNotFound         ErrorKind = "EXECUTION_NOT_FOUND"
	KindUnknownResourceType       ErrorKind = "UNKNOWN_RESOURCE_TYPE"
	KindStoragePricingUnavailable ErrorKind = "STORAGE_PRICING_UNAVAILABLE"
	KindPaginationOverflow        ErrorKind = "PAGINATION_OVERFLOW"
	KindBackend                   ErrorKind = "BACKEND_ERROR"
	KindValidation                ErrorKind = "VALIDATION_ERROR"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrPricingUnavailable        = &Error{Kind: KindPricingUnavailable}
	ErrExecutionNotFound         = &Error{Kind: KindExecutionNotFound}
	ErrUnknownResourceType       = &Error{Kind: KindUnknownResourceType}
	ErrStoragePricingUnavailable = &Error{Kind: KindStoragePricingUnavailable}
	ErrPaginationOverflow        = &Error{Kind: KindPaginationOverflow}
	ErrBackend                   = &Error{Kind: KindBackend}
	ErrValidation                = &Error{Kind: KindValidation}
)

// Error is a classified failure. Resource names the offending identifier
// (run id, resource type, URL) when there is one.
type Error struct {
	Kind     ErrorKind `json:"code"`
	Message  string    `json:"message"`
	Resource string    `json:"resource,omitempty"`
	Err      error     `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewPricingUnavailable wraps a pricing fetch or parse failure.
func NewPricingUnavailable(source string, err error) *Error {
	return &Error{
		Kind:     KindPricingUnavailable,
		Message:  fmt.Sprintf("pricing catalog %s unavailable", source),
		Resource: source,
		Err:      err,
	}
}

// NewExecutionNotFound reports a run id the service does not know.
func NewExecutionNotFound(id string, err error) *Error {
	return &Error{
		Kind:     KindExecutionNotFound,
		Message:  fmt.Sprintf("run '%s' not found", id),
		Resource: id,
		Err:      err,
	}
}

// NewUnknownResourceType reports a task resource type that has no price.
func NewUnknownResourceType(resourceType, taskID string) *Error {
	return &Error{
		Kind:     KindUnknownResourceType,
		Message:  fmt.Sprintf("no price for resource type '%s' (task %s)", resourceType, taskID),
		Resource: resourceType,
	}
}

// NewStoragePricingUnavailable reports a catalog without the run storage rate.
func NewStoragePricingUnavailable(key string) *Error {
	return &Error{
		Kind:     KindStoragePricingUnavailable,
		Message:  fmt.Sprintf("no price for '%s'", key),
		Resource: key,
	}
}

// NewPaginationOverflow reports a listing that exceeded the safety cap.
func NewPaginationOverflow(id string, limit int) *Error {
	return &Error{
		Kind:     KindPaginationOverflow,
		Message:  fmt.Sprintf("run '%s' lists more than %d tasks", id, limit),
		Resource: id,
	}
}

// NewBackendError wraps an unexpected failure from an external service.
func NewBackendError(op string, err error) *Error {
	return &Error{
		Kind:    KindBackend,
		Message: op,
		Err:     err,
	}
}

// NewValidationError reports bad local input.
func NewValidationError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}
