package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/waveroom/api/pkg/response"
)

// OperatorAuth guards operator endpoints (recovery sweep) with a shared
// token compared in constant time.
func OperatorAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return response.Forbidden(c, "Operator access not configured")
		}

		got := c.Get("X-Operator-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return response.Unauthorized(c, "Invalid operator token")
		}
		return c.Next()
	}
}
