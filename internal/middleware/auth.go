package middleware

import (
	"context"
	"strings"

	"tidepool/internal/models"

	"github.com/gofiber/fiber/v2"
)

// IdentityResolver maps an opaque session token to a user identity.
// (0, false) means unauthenticated; errors are store failures only.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (uint, bool, error)
}

// SessionToken extracts the bearer token from the Authorization header.
// Returns "" when the header is absent or malformed.
func SessionToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// AuthRequired enforces an active session for protected routes. On success
// the resolved user ID and the raw token are stored in Fiber locals.
func AuthRequired(resolver IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := SessionToken(c)
		if token == "" {
			return models.RespondWithError(c, models.NewUnauthenticatedError())
		}

		userID, ok, err := resolver.ResolveIdentity(c.UserContext(), token)
		if err != nil {
			Logger.ErrorContext(c.UserContext(), "identity resolution failed", "error", err.Error())
			return models.RespondWithError(c, err)
		}
		if !ok {
			return models.RespondWithError(c, models.NewUnauthenticatedError())
		}

		c.Locals("userID", userID)
		c.Locals("sessionToken", token)
		return c.Next()
	}
}

// OptionalAuth resolves the session when a token is present but lets
// unauthenticated requests through. Read-only endpoints use this.
func OptionalAuth(resolver IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := SessionToken(c)
		if token != "" {
			if userID, ok, err := resolver.ResolveIdentity(c.UserContext(), token); err == nil && ok {
				c.Locals("userID", userID)
				c.Locals("sessionToken", token)
			}
		}
		return c.Next()
	}
}
