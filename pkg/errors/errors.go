package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrBusy           = errors.New("operation already in progress")
	ErrStale          = errors.New("principal changed while request was in flight")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrRemote         = errors.New("remote call failed")
	ErrInternal       = errors.New("internal error")
	ErrCanceled       = errors.New("request abandoned before completion")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// NotSignedIn is the 401 returned when a cart or order operation runs without a principal.
func NotSignedIn() *AppError {
	return &AppError{
		Code:    "NOT_SIGNED_IN",
		Message: "please sign in to continue",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Busy creates a 409 error for a rejected concurrent submission.
func Busy(message string) *AppError {
	return &AppError{
		Code:    "BUSY",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrBusy,
	}
}

// Stale creates a 409 error for a result computed for a principal that is no longer bound.
func Stale() *AppError {
	return &AppError{
		Code:    "STALE_SESSION",
		Message: "the signed-in user changed, please retry",
		Status:  http.StatusConflict,
		Err:     ErrStale,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// Remote creates a 502 error wrapping a failed call to the backend.
func Remote(service string, err error) *AppError {
	return &AppError{
		Code:    "REMOTE_FAILURE",
		Message: fmt.Sprintf("%s request failed", service),
		Status:  http.StatusBadGateway,
		Err:     errors.Join(ErrRemote, err),
	}
}

// StatusClientClosedRequest is reported when the caller went away before the
// result was ready.
const StatusClientClosedRequest = 499

// Canceled wraps a context error for a caller that stopped waiting. A passed
// deadline maps to 504, a cancellation to 499. The context error stays
// reachable through errors.Is.
func Canceled(err error) *AppError {
	e := &AppError{
		Code:    "REQUEST_CANCELED",
		Message: "request canceled before completion",
		Status:  StatusClientClosedRequest,
		Err:     errors.Join(ErrCanceled, err),
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Code = "REQUEST_TIMEOUT"
		e.Message = "request timed out"
		e.Status = http.StatusGatewayTimeout
	}
	return e
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err was raised by client-side validation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRemote reports whether err came from a failed backend call, including
// backend 5xx responses and an open circuit.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemote) || errors.Is(err, ErrServiceUnavail)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrBusy), errors.Is(err, ErrStale):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRemote):
		return http.StatusBadGateway
	case errors.Is(err, ErrCanceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
