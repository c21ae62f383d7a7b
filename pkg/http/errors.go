package http

import (
	"fmt"
	"net/http"
)

// AppError is an error the API can render: a stable machine code plus
// an HTTP status, with the root cause kept out of the response body.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithError attaches the root cause for logs and errors.Is chains.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// WithParam adds one structured detail to the response body.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

func newAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// BadRequestError is a 400 with code ERR_BAD_REQUEST.
func BadRequestError(message string) *AppError {
	return newAppError("ERR_BAD_REQUEST", message, http.StatusBadRequest)
}

// NotFoundErrorf is a 404 with code ERR_NOT_FOUND.
func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return newAppError("ERR_NOT_FOUND", fmt.Sprintf(format, a...), http.StatusNotFound)
}

// RateLimitedError is a 429 with code ERR_RATE_LIMITED.
func RateLimitedError(message string) *AppError {
	return newAppError("ERR_RATE_LIMITED", message, http.StatusTooManyRequests)
}

// InternalError is a 500 with code ERR_INTERNAL.
func InternalError(message string) *AppError {
	return newAppError("ERR_INTERNAL", message, http.StatusInternalServerError)
}

// InternalErrorf formats an InternalError.
func InternalErrorf(format string, a ...interface{}) *AppError {
	return InternalError(fmt.Sprintf(format, a...))
}
