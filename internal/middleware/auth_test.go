package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"loyka/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims models.TerminalClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func terminalClaims(role string) models.TerminalClaims {
	return models.TerminalClaims{
		RestaurantID: 1,
		TerminalID:   "till-1",
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newAuthApp(secretHash string, extra ...fiber.Handler) *fiber.App {
	app := fiber.New()
	auth := NewTerminalAuth(testSecret, secretHash)
	handlers := append([]fiber.Handler{auth.Handler}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/protected", handlers...)
	return app
}

func TestTerminalAuthHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("kiosk-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	expired := terminalClaims("terminal")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name       string
		setup      func(req *http.Request)
		wantStatus int
	}{
		{
			name: "valid token",
			setup: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+signToken(t, terminalClaims("terminal")))
			},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "missing header",
			setup:      func(req *http.Request) {},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "not a bearer token",
			setup: func(req *http.Request) {
				req.Header.Set("Authorization", "Basic abc")
			},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "expired token",
			setup: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+signToken(t, expired))
			},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "garbage token",
			setup: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer not.a.token")
			},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "shared secret fallback",
			setup: func(req *http.Request) {
				req.Header.Set("X-Terminal-Secret", "kiosk-secret")
			},
			wantStatus: fiber.StatusOK,
		},
		{
			name: "wrong shared secret",
			setup: func(req *http.Request) {
				req.Header.Set("X-Terminal-Secret", "wrong")
			},
			wantStatus: fiber.StatusUnauthorized,
		},
	}

	app := newAuthApp(string(hash))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			tt.setup(req)
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := newAuthApp("", RequireRole("manager"))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, terminalClaims("terminal")))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, terminalClaims("manager")))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
