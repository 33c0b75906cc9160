package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// ClientIdentity resolves the caller identity used for rate limiting.
// Behind the gateway the X-User-Id header is populated by the auth layer in
// front of this service; without it the peer IP stands in.
func ClientIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := c.Get("X-User-Id")
		if clientID == "" {
			clientID = c.IP()
		}
		c.Locals("clientId", clientID)
		return c.Next()
	}
}

// GetClientID extracts the resolved client identity from context
func GetClientID(c *fiber.Ctx) string {
	if clientID, ok := c.Locals("clientId").(string); ok {
		return clientID
	}
	return ""
}
