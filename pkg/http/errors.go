package http

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is an error with an HTTP status, rendered as a single-element error list.
type AppError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Field      string        `json:"field,omitempty"`
	Status     int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// WithRetryAfter sets the Retry-After header sent with the response.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

func newAppError(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func BadRequestError(message string) *AppError {
	return newAppError("ERR_BAD_REQUEST", http.StatusBadRequest, message)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return newAppError("ERR_NOT_FOUND", http.StatusNotFound, fmt.Sprintf(format, a...))
}

func TooManyRequestsError(message string) *AppError {
	return newAppError("ERR_RATE_LIMITED", http.StatusTooManyRequests, message)
}

func InternalError(message string) *AppError {
	return newAppError("ERR_INTERNAL", http.StatusInternalServerError, message)
}

// BadGatewayError reports an upstream provider failure.
func BadGatewayError(message string) *AppError {
	return newAppError("ERR_UPSTREAM", http.StatusBadGateway, message)
}

func ServiceUnavailableError(message string) *AppError {
	return newAppError("ERR_UNAVAILABLE", http.StatusServiceUnavailable, message)
}
