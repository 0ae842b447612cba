package common

import (
	"errors"
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// ErrorMapping binds a sentinel error to its API code and status.
type ErrorMapping struct {
	Target error
	Code   string
	Status int
}

// ErrorTable translates domain errors into API errors. Earlier entries win.
type ErrorTable []ErrorMapping

// Resolve returns the AppError for err. Unknown errors become INTERNAL so
// storage details never leak to clients.
func (t ErrorTable) Resolve(err error) *AppError {
	if err == nil {
		return NewAppError("INTERNAL", "unknown error", http.StatusInternalServerError, nil)
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		out := *appErr
		if out.HTTPStatus == 0 {
			out.HTTPStatus = http.StatusBadRequest
		}
		if out.Code == "" {
			out.Code = "BAD_REQUEST"
		}
		if out.Message == "" {
			out.Message = out.Error()
		}
		return &out
	}
	for _, m := range t {
		if errors.Is(err, m.Target) {
			return NewAppError(m.Code, err.Error(), m.Status, err)
		}
	}
	return NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
}

// WriteError renders err through the table.
func (t ErrorTable) WriteError(w http.ResponseWriter, err error) {
	appErr := t.Resolve(err)
	JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}
