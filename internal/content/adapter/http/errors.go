package http

import (
	"errors"

	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError answers with the status and body derived from err.
func writeError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	resp := ErrorResponse{Error: string(apperrors.TypeOf(err)), Message: err.Error()}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	}
	if resp.Error == "" {
		resp.Error = string(apperrors.ErrorTypeInternal)
	}
	if status >= fiber.StatusInternalServerError {
		resp.Message = "internal server error"
	}
	return c.Status(status).JSON(resp)
}

// ErrorHandler is the fiber.Config ErrorHandler of the server.
// Errors that escape a handler are logged and answered like writeError does.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Error: "http", Message: fe.Message})
		}
		if apperrors.HTTPStatus(err) >= fiber.StatusInternalServerError {
			log.WithFields(map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
			}).Errorf("Request failed: %v", err)
		}
		return writeError(c, err)
	}
}
