package middleware

import (
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/credentials"

	"github.com/gofiber/fiber/v2"
)

var defaultHeaderNames = []string{"X-API-Key"}

// APIKeyMiddleware authenticates callers against the keys configured on the
// server. Comparison is constant time. No configured keys means the gateway
// runs open, which is for development only.
type APIKeyMiddleware struct {
	keys        []credentials.Secret
	headerNames []string
	skipPaths   []string
}

func NewAPIKeyMiddleware(cfg *models.ServerConfig) *APIKeyMiddleware {
	keys := make([]credentials.Secret, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys = append(keys, credentials.NewSecret(k))
		}
	}
	return &APIKeyMiddleware{
		keys:        keys,
		headerNames: defaultHeaderNames,
		skipPaths:   []string{"/health", "/"},
	}
}

func (m *APIKeyMiddleware) RequireAPIKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(m.keys) == 0 {
			return c.Next()
		}
		for _, path := range m.skipPaths {
			if c.Path() == path {
				return c.Next()
			}
		}

		key := m.extractAPIKey(c)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key required",
			})
		}

		candidate := credentials.NewSecret(key)
		for _, known := range m.keys {
			if known.Equal(candidate) {
				c.Locals("api_key_label", label(key))
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid API key",
		})
	}
}

func (m *APIKeyMiddleware) extractAPIKey(c *fiber.Ctx) string {
	for _, headerName := range m.headerNames {
		if key := c.Get(headerName); key != "" {
			return strings.TrimSpace(key)
		}
	}

	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}

	return ""
}

// label is the loggable form of a key: enough prefix to tell keys apart,
// never enough to replay.
func label(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
