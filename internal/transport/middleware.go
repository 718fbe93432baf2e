package transport

import (
	"github.com/dispatchlab/notify-gateway/internal/observability"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// CorrelationContext copies the request id set by the requestid middleware
// into the request's user context, so every log line written downstream of a
// handler carries the correlationId field. Must be registered after
// requestid.New().
func CorrelationContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok && id != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		}
		return c.Next()
	}
}
