package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/apperr"
)

// Middleware validates the bearer token and stores the user id on the
// request context.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return apperr.Unauthorized("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperr.Unauthorized("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return apperr.Unauthorized("Invalid or expired token")
		}

		c.Locals("user_id", claims.Subject)
		return c.Next()
	}
}

// UserID extracts the authenticated user id from a request context.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
