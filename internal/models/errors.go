package models

import "fmt"

// AppError is a structured application error carrying a stable machine
// readable code, a human readable message, and optional metadata surfaced
// to API clients.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
	Err     error          `json:"-"`
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

// WithMeta attaches structured metadata to the error and returns it.
func (e *AppError) WithMeta(meta map[string]any) *AppError {
	e.Meta = meta
	return e
}

// Error codes returned to API clients.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeSyncDisabled = "SYNC_DISABLED"
	CodeInternal     = "INTERNAL_ERROR"
)

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

func NewSyncDisabledError() *AppError {
	return &AppError{Code: CodeSyncDisabled, Message: "catalog sync is disabled by system settings"}
}

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "an internal error occurred", Err: err}
}
