package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the single error currency of the service. Every failure that
// crosses a package boundary carries an id (dotted, stable, loggable), an
// HTTP-ish status code and a human-readable detail.
type AppError struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	DetailedError string `json:"detail"`
	StatusCode    int    `json:"code,omitempty"`
	cause         error
}

func (err *AppError) Error() string {
	return fmt.Sprintf("AppError [%s]: %s, %s", err.ID, err.Status, err.DetailedError)
}

func (err *AppError) Unwrap() error {
	return err.cause
}

func (err *AppError) SetStatusCode(code int) *AppError {
	err.StatusCode = code
	err.Status = http.StatusText(code)
	return err
}

type Option func(*AppError)

// WithID overrides the error id, e.g. "store.export_job.claim.conflict".
func WithID(id string) Option {
	return func(err *AppError) {
		err.ID = id
	}
}

// WithCause attaches the underlying error for wrapping/unwrapping.
func WithCause(cause error) Option {
	return func(err *AppError) {
		err.cause = cause
	}
}

func newAppError(id, detail string, code int, opts ...Option) *AppError {
	err := &AppError{ID: id, DetailedError: detail}
	err.SetStatusCode(code)
	for _, opt := range opts {
		opt(err)
	}
	return err
}

// New builds an internal error with a generic id.
func New(detail string, opts ...Option) *AppError {
	return newAppError("app.internal.error", detail, http.StatusInternalServerError, opts...)
}

func Internal(detail string, opts ...Option) *AppError {
	return newAppError("app.internal.error", detail, http.StatusInternalServerError, opts...)
}

// InvalidArgument marks malformed or missing caller input.
func InvalidArgument(detail string, opts ...Option) *AppError {
	return newAppError("app.invalid_argument.error", detail, http.StatusBadRequest, opts...)
}

// NotFound marks an unknown job, website or missing artifact.
func NotFound(detail string, opts ...Option) *AppError {
	return newAppError("app.not_found.error", detail, http.StatusNotFound, opts...)
}

// InvalidTransition marks an operation that is illegal for the job's
// current status, e.g. cancelling a completed job.
func InvalidTransition(detail string, opts ...Option) *AppError {
	return newAppError("app.invalid_transition.error", detail, http.StatusConflict, opts...)
}

func IsInvalidArgument(err error) bool {
	return hasStatusCode(err, http.StatusBadRequest)
}

func IsNotFound(err error) bool {
	return hasStatusCode(err, http.StatusNotFound)
}

func IsInvalidTransition(err error) bool {
	return hasStatusCode(err, http.StatusConflict)
}

func hasStatusCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode == code
	}
	return false
}

// StatusCode maps any error to the HTTP status the transport should answer
// with; non-AppError values are treated as internal.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
