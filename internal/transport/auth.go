package transport

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// BearerAuth guards the management API with a static bearer token.
// Webhook and health routes are registered before this middleware and
// stay open; provider callbacks carry their own signature check.
func BearerAuth(token string) fiber.Handler {
	expected := []byte(strings.TrimSpace(token))

	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return fiber.NewError(fiber.StatusInternalServerError, "api token is not configured")
		}

		header := c.Get(fiber.HeaderAuthorization)
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		if subtle.ConstantTimeCompare(expected, []byte(strings.TrimSpace(presented))) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		return c.Next()
	}
}
