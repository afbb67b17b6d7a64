// Package handlers exposes the ledger core over HTTP. Handlers stay thin:
// parse the request, call the service, map the typed error to a status code.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"loyka/internal/errors"
)

func statusForError(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeValidation:
		return fiber.StatusBadRequest
	case errors.CodeNotFound:
		return fiber.StatusNotFound
	case errors.CodeGuestBlocked:
		return fiber.StatusForbidden
	case errors.CodeConcurrent, errors.CodeInvalidState:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func renderError(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{
		"error":     err.Error(),
		"code":      errors.CodeOf(err),
		"retryable": errors.IsRetryable(err),
	})
}
