// Package middleware provides the HTTP middleware of the service: POS
// terminal authentication for the write endpoints.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"loyka/internal/models"
)

// TerminalAuth validates POS terminal credentials. Terminals present a
// signed JWT in the Authorization header; a bcrypt-hashed shared secret in
// X-Terminal-Secret is accepted as a fallback for fixed kiosk installs
// that cannot rotate tokens.
type TerminalAuth struct {
	jwtSecret  []byte
	secretHash []byte
}

// NewTerminalAuth creates the middleware. secretHash is the bcrypt hash of
// the shared kiosk secret and may be empty to disable the fallback.
func NewTerminalAuth(jwtSecret, secretHash string) *TerminalAuth {
	return &TerminalAuth{
		jwtSecret:  []byte(jwtSecret),
		secretHash: []byte(secretHash),
	}
}

// Handler authenticates the request and stores the terminal claims in the
// request context under "claims".
func (m *TerminalAuth) Handler(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if m.validSharedSecret(c.Get("X-Terminal-Secret")) {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &models.TerminalClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}

	claims, ok := token.Claims.(*models.TerminalClaims)
	if !ok || claims.RestaurantID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid claims"})
	}

	c.Locals("claims", claims)
	return c.Next()
}

// RequireRole gates a route on the terminal role carried in the claims.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*models.TerminalClaims)
		if !ok || claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		if claims.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permissions"})
		}
		return c.Next()
	}
}

func (m *TerminalAuth) validSharedSecret(secret string) bool {
	if len(m.secretHash) == 0 || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(m.secretHash, []byte(secret)) == nil
}
