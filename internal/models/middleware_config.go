package models

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig controls the request rate limiter. KeyFunc defaults to the
// caller's API key label, falling back to the client IP.
type RateLimitConfig struct {
	Max        int
	Expiration time.Duration
	KeyFunc    func(*fiber.Ctx) string
}

// TimeoutConfig sets the per-request deadline applied before the gateway's
// own query timeouts.
type TimeoutConfig struct {
	Timeout time.Duration
}
