// Package config provides the embeddable gateway server.
package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/adaptive-sql/querygate/internal/api"
	"github.com/adaptive-sql/querygate/internal/config"
	"github.com/adaptive-sql/querygate/internal/services/gateway"
	"github.com/adaptive-sql/querygate/internal/services/middleware"
	"github.com/adaptive-sql/querygate/pkg/builder"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server represents a gateway server instance.
type Server struct {
	config  *config.Config
	app     *fiber.App
	gw      *gateway.Gateway
	builder *builder.Builder
}

// NewServer creates a new Server instance with the given configuration.
// The cfg parameter is required and must not be nil.
// For middleware control, use NewServerWithBuilder.
func NewServer(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the builder to create one")
	}
	return &Server{config: cfg}
}

// NewServerWithBuilder creates a new Server instance from a configuration
// builder, giving full control over middlewares.
func NewServerWithBuilder(b *builder.Builder) *Server {
	return &Server{config: b.Build(), builder: b}
}

// Run starts the gateway server and blocks until shutdown.
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	s.app = createFiberApp(s.config)

	gw, err := gateway.New(s.config)
	if err != nil {
		return fmt.Errorf("gateway initialization failed: %w", err)
	}
	s.gw = gw
	defer func() {
		if err := s.gw.Close(); err != nil {
			fiberlog.Errorf("Failed to close gateway: %v", err)
		}
	}()

	s.setupMiddleware()
	s.setupRoutes()

	s.app.Get("/", welcomeHandler())

	fmt.Printf("QueryGate starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Connections: %d\n", len(s.config.Connections))
	fmt.Printf("   Go version: %s\n", runtime.Version())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Context cancelled, starting shutdown...")
	}

	fiberlog.Info("Server shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownErrChan := make(chan error, 1)
	go func() {
		shutdownErrChan <- s.app.ShutdownWithTimeout(30 * time.Second)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}

	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:              "QueryGate v1.0",
		EnablePrintRoutes:    !isProd,
		ReadTimeout:          2 * time.Minute,
		WriteTimeout:         2 * time.Minute,
		IdleTimeout:          5 * time.Minute,
		ReadBufferSize:       8192,
		WriteBufferSize:      8192,
		CompressedFileSuffix: ".gz",
		Prefork:              false,
		CaseSensitive:        true,
		StrictRouting:        false,
		Network:              "tcp",
		ServerHeader:         "QueryGate",
	})
}

func (s *Server) setupMiddleware() {
	isProd := s.config.IsProduction()

	// Recover middleware (must be first)
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	// Rate limiter (use builder config if available, otherwise use defaults)
	rlMax, rlExpiration := 1000, 1*time.Minute
	keyFunc := func(c *fiber.Ctx) string {
		if label, ok := c.Locals("api_key_label").(string); ok && label != "" {
			return label
		}
		return c.IP()
	}
	if s.builder != nil && s.builder.GetRateLimitConfig() != nil {
		rlCfg := s.builder.GetRateLimitConfig()
		rlMax, rlExpiration = rlCfg.Max, rlCfg.Expiration
		if rlCfg.KeyFunc != nil {
			keyFunc = rlCfg.KeyFunc
		}
	}
	s.app.Use(limiter.New(limiter.Config{
		Max:               rlMax,
		Expiration:        rlExpiration,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      keyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return fmt.Errorf("%d requests per %v", rlMax, rlExpiration)
		},
	}))

	// Request timeout middleware
	const (
		defaultTimeout = 30 * time.Second
		maxTimeout     = 2 * time.Minute
	)
	requestTimeout := defaultTimeout
	if s.builder != nil && s.builder.GetTimeoutConfig() != nil {
		requestTimeout = s.builder.GetTimeoutConfig().Timeout
	}
	s.app.Use(func(c *fiber.Ctx) error {
		timeout := requestTimeout
		if customTimeout := c.Get("X-Request-Timeout"); customTimeout != "" {
			if d, err := time.ParseDuration(customTimeout); err == nil && d > 0 {
				timeout = min(d, maxTimeout)
			}
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)

		return c.Next()
	})

	// Compression
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Logging
	if isProd {
		s.app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, User-Agent, X-API-Key, X-Request-Timeout",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
	}))

	// API key authentication
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(&s.config.Server)
	s.app.Use(apiKeyMiddleware.RequireAPIKey())

	// Custom middlewares from builder
	if s.builder != nil {
		for _, mw := range s.builder.GetMiddlewares() {
			s.app.Use(mw)
		}
	}

	// Profiler (dev only)
	if !isProd {
		s.app.Use(pprof.New())
	}
}

func (s *Server) setupRoutes() {
	gatewayHandler := api.NewGatewayHandler(s.gw)
	healthHandler := api.NewHealthHandler(s.config, s.gw)

	// Health check endpoint (always enabled)
	s.app.Get("/health", healthHandler.HealthCheck)

	v1 := s.app.Group("/v1")
	v1.Get("/connections", gatewayHandler.ListConnections)

	conn := v1.Group("/connections/:name")
	conn.Get("/tables", gatewayHandler.ListTables)
	conn.Get("/tables/:table/schema", gatewayHandler.GetSchema)
	conn.Get("/tables/:table/describe", gatewayHandler.DescribeTable)
	conn.Get("/tables/:table/ddl", gatewayHandler.GetDDL)
	conn.Get("/tables/:table/indexes", gatewayHandler.ListIndexes)
	conn.Get("/tables/:table/stats", gatewayHandler.GetStats)
	conn.Get("/tables/:table/constraints", gatewayHandler.ListConstraints)
	conn.Post("/query", gatewayHandler.Query)
	conn.Post("/explain", gatewayHandler.Explain)
	conn.Post("/analyze", gatewayHandler.Analyze)
	conn.Get("/performance", gatewayHandler.GetPerformance)

	admin := s.app.Group("/admin")
	admin.Get("/audit", gatewayHandler.AuditRecent)
	admin.Get("/pools", gatewayHandler.PoolStats)
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Welcome to QueryGate!",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"connections": "/v1/connections",
				"tables":      "/v1/connections/:name/tables",
				"query":       "/v1/connections/:name/query",
				"explain":     "/v1/connections/:name/explain",
				"analyze":     "/v1/connections/:name/analyze",
				"health":      "/health",
			},
		})
	}
}
