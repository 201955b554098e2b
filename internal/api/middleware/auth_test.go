package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(denylist *Denylist) *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware(JWTConfig{
		SecretKey: "test-secret",
		SkipPaths: []string{"/api/v1/login"},
	}, denylist))
	app.Get("/api/v1/stats", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"username": c.Locals("username")})
	})
	app.Post("/api/v1/login", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestJWTMiddlewareRejectsMissingToken(t *testing.T) {
	app := testApp(nil)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddlewareSkipsLogin(t *testing.T) {
	app := testApp(nil)

	req := httptest.NewRequest("POST", "/api/v1/login", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	app := testApp(nil)

	token, err := GenerateToken(JWTConfig{SecretKey: "test-secret"}, 1, "admin", true, "jti-1")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTMiddlewareRejectsWrongSecret(t *testing.T) {
	app := testApp(nil)

	token, err := GenerateToken(JWTConfig{SecretKey: "other-secret"}, 1, "admin", false, "jti-2")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddlewareRejectsRevokedToken(t *testing.T) {
	denylist := NewDenylist()
	app := testApp(denylist)

	token, err := GenerateToken(JWTConfig{SecretKey: "test-secret"}, 1, "admin", false, "jti-3")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	denylist.Revoke("jti-3", time.Now().Add(time.Hour))

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestDenylistExpiry(t *testing.T) {
	d := NewDenylist()
	d.Revoke("a", time.Now().Add(-time.Minute))
	assert.False(t, d.Revoked("a"))

	d.Revoke("b", time.Now().Add(time.Minute))
	assert.True(t, d.Revoked("b"))
}
