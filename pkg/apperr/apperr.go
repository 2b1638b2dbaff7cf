// Package apperr carries the error taxonomy shared by services and HTTP
// handlers: every error that should reach a client is an *Error with an
// HTTP status and a stable code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes returned to clients
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodePaymentRequired = "PAYMENT_REQUIRED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
)

// Error is an error that maps to an HTTP response
type Error struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches client visible details
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithCode overrides the default code
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, CodeValidation, message)
}

func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return newError(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(message string) *Error {
	return newError(http.StatusNotFound, CodeNotFound, message)
}

func Conflict(message string) *Error {
	return newError(http.StatusConflict, CodeConflict, message)
}

func PaymentRequired(message string) *Error {
	return newError(http.StatusPaymentRequired, CodePaymentRequired, message)
}

func TooManyRequests(message string) *Error {
	return newError(http.StatusTooManyRequests, CodeRateLimited, message)
}

// Internal wraps an unexpected failure. The cause is logged, never returned.
func Internal(message string, err error) *Error {
	e := newError(http.StatusInternalServerError, CodeInternal, message)
	e.Err = err
	return e
}

// As returns the *Error in err's chain, if any
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, 500 for unknown errors
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
