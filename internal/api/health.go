package api

import (
	"time"

	"github.com/adaptive-sql/querygate/internal/config"
	"github.com/adaptive-sql/querygate/internal/services/gateway"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	cfg *config.Config
	gw  *gateway.Gateway
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(cfg *config.Config, gw *gateway.Gateway) *HealthHandler {
	return &HealthHandler{cfg: cfg, gw: gw}
}

// HealthCheck reports the gateway's own state. Backends are not dialed here;
// a connection nobody queried yet stays cold and that is not a failure.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	status := "healthy"
	statusCode := fiber.StatusOK

	if len(h.cfg.Connections) == 0 {
		status = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	pools := fiber.Map{}
	for _, s := range h.gw.PoolStats() {
		pools[s.Connection] = fiber.Map{
			"connected": s.Connected,
			"in_use":    s.InUse,
			"max_size":  s.MaxSize,
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":        status,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"connections":   len(h.cfg.Connections),
		"pools":         pools,
		"audit_dropped": h.gw.Audit().Dropped(),
	})
}
