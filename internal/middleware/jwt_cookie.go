package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taskhived/backend/internal/utils"
)

// JWTFromCookie authenticates the session cookie and stashes the parsed
// claims for the rest of the chain.
func JWTFromCookie(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies("th_token")
		if tokenStr == "" {
			return fiber.ErrUnauthorized
		}

		claims, err := utils.ParseJWT(secret, tokenStr)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}
