package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/adaptive-sql/querygate/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(keys []string) *fiber.App {
	app := fiber.New()
	m := NewAPIKeyMiddleware(&models.ServerConfig{APIKeys: keys})
	app.Use(m.RequireAPIKey())
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/v1/connections", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestAPIKeyRequired(t *testing.T) {
	app := newApp([]string{"sk-test-1"})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/connections", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/v1/connections", nil)
	req.Header.Set("X-API-Key", "sk-test-1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/v1/connections", nil)
	req.Header.Set("X-API-Key", "sk-wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyBearerHeader(t *testing.T) {
	app := newApp([]string{"sk-test-1"})

	req := httptest.NewRequest("GET", "/v1/connections", nil)
	req.Header.Set("Authorization", "Bearer sk-test-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeySkipsHealth(t *testing.T) {
	app := newApp([]string{"sk-test-1"})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyDisabledWhenUnset(t *testing.T) {
	app := newApp(nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/connections", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLabelNeverRevealsKey(t *testing.T) {
	assert.Equal(t, "sk-t****", label("sk-test-1"))
	assert.Equal(t, "****", label("abc"))
}
