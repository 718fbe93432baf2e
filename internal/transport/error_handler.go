// Package transport holds HTTP-level plumbing shared by all handlers.
package transport

import (
	"errors"
	"math"
	"strconv"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON error envelope returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewErrorHandler maps domain errors to HTTP responses. Rate limit
// rejections carry a Retry-After header with the remaining window.
func NewErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		var rateLimitErr *domain.RateLimitError
		if errors.As(err, &rateLimitErr) {
			retryAfter := int(math.Ceil(rateLimitErr.ResetAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error: rateLimitErr.Error(),
				Code:  domain.CodeRateLimitExceeded,
			})
		}

		var notifErr *domain.NotificationError
		if errors.As(err, &notifErr) && notifErr.Category == domain.CategorySecurity {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: notifErr.Title,
				Code:  notifErr.Code,
			})
		}

		switch {
		case errors.Is(err, domain.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: err.Error(),
				Code:  domain.CodeInvalidRequest,
			})
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error: err.Error(),
			})
		case errors.Is(err, domain.ErrConflict):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Error: err.Error(),
			})
		case errors.Is(err, domain.ErrTemplateNotFound):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error: err.Error(),
				Code:  domain.CodeTemplateNotFound,
			})
		case errors.Is(err, domain.ErrTemplateRender):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: err.Error(),
				Code:  domain.CodeTemplateRender,
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: fiberErr.Message})
		}

		logger.Error("unhandled request error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "internal server error",
		})
	}
}
