package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PrincipalKey is the fiber.Locals key holding the authenticated user id.
const PrincipalKey = "user_id"

// PrincipalVerifier resolves a bearer access token to a user id.
type PrincipalVerifier interface {
	Principal(ctx context.Context, accessToken string) (string, error)
}

// JWTAuth rejects requests without a valid bearer token.
func JWTAuth(verifier PrincipalVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		principal, err := verifier.Principal(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(PrincipalKey, principal)
		return c.Next()
	}
}

// OptionalJWT attaches the principal when a valid bearer token is present and
// lets the handler decide how to treat anonymous calls.
func OptionalJWT(verifier PrincipalVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := bearerToken(c); ok {
			if principal, err := verifier.Principal(c.UserContext(), token); err == nil {
				c.Locals(PrincipalKey, principal)
			}
		}
		return c.Next()
	}
}

// Principal returns the user id attached by JWTAuth or OptionalJWT.
func Principal(c *fiber.Ctx) string {
	principal, _ := c.Locals(PrincipalKey).(string)
	return principal
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authz := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[len("Bearer "):])
	return token, token != ""
}
