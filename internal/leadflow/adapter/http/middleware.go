package http

import (
	"leadflow/internal/shared/contextkeys"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID accepts the caller's X-Request-ID or generates one, echoes it on
// the response and stores it in the user context for logging.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Locals(string(contextkeys.RequestIDKey), id)
		c.SetUserContext(contextkeys.With(c.UserContext(), contextkeys.RequestIDKey, id))
		return c.Next()
	}
}
