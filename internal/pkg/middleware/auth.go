package middleware

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/glyphio/glyphio/internal/pkg/identity"
	"github.com/glyphio/glyphio/internal/pkg/usercontext"
)

// RequireBearerAuth validates the bearer token against the identity
// provider and attaches the verified identity to the request context.
func RequireBearerAuth(provider identity.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing token"})
		}

		ident, err := provider.Resolve(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid session"})
			}
			log.Printf("identity check failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Identity check failed"})
		}

		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     ident.ID,
			Email:      ident.Email,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
