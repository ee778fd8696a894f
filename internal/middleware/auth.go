package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/waveroom/api/internal/auth"
	"github.com/waveroom/api/pkg/response"
)

// AuthMiddleware resolves the caller's session from an HMAC-signed bearer
// token.
type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the session token from the Authorization header.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		if m.jwtSecret == "" {
			return response.Unauthorized(c, "Authentication not configured")
		}

		claims, err := auth.ValidateSessionToken(parts[1], m.jwtSecret)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("sessionId", claims.SessionID)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// GatewayAuthMiddleware reads session identity from X-Session-* headers set
// by Traefik ForwardAuth.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Get("X-Session-Id")
		if sessionID == "" {
			return response.Unauthorized(c, "Missing session identity headers")
		}

		c.Locals("sessionId", sessionID)
		return c.Next()
	}
}

// GetSessionID extracts the session ID from the request context.
func GetSessionID(c *fiber.Ctx) string {
	if sessionID, ok := c.Locals("sessionId").(string); ok {
		return sessionID
	}
	return ""
}
