package models

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the standardized API error envelope.
type ErrorResponse struct {
	Error string         `json:"error"`
	Code  string         `json:"code,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// HTTPStatus maps an error to its HTTP status code. Conflict errors map to
// 400: clients treat duplicate-open, already-in-store, and invalid
// transitions as request problems, not resource-state negotiations.
func HTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation, CodeConflict, CodeSyncDisabled:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError writes the standardized error envelope with the status
// derived from the error's code.
func RespondWithError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.Status(HTTPStatus(err)).JSON(ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
		Meta:  appErr.Meta,
	})
}
