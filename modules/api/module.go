package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/chat-relay/modules/chat"
	"github.com/example/chat-relay/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Relay is the chat core as seen by the transport.
type Relay interface {
	Connect() *chat.Session
	Hub() *chat.Hub
}

// Config holds the HTTP server settings.
type Config struct {
	Port           string
	AllowedOrigins string
}

// Module is the HTTP API module with WebSocket support.
type Module struct {
	cfg            Config
	app            *fiber.App
	history        store.HistoryPort
	relay          Relay
	metricsHandler http.Handler
	logger         types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new API module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.Port == "" {
		cfg.Port = "3500"
	}
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"store"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "store":
		m.history = store.NewHistoryAdapter(container)
	}
}

// SetRelay sets the chat relay (called from main.go).
// The relay is not exposed via ServiceContainer because sessions are
// in-process objects bound to a live socket.
func (m *Module) SetRelay(relay Relay) {
	m.relay = relay
}

// SetMetricsHandler mounts a Prometheus handler at /metrics.
func (m *Module) SetMetricsHandler(h http.Handler) {
	m.metricsHandler = h
}

// Start initializes the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.history == nil {
		return errors.New("history dependency not set")
	}
	if m.relay == nil {
		return errors.New("chat relay dependency not set")
	}

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.cfg.Port); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.cfg.Port)
	return nil
}

// newApp builds the Fiber application and its routes.
func (m *Module) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		UnescapePath:          true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			// Skip logging for WebSocket upgrade requests
			return c.Get(fiber.HeaderUpgrade) == "websocket"
		},
	}))
	if m.cfg.AllowedOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: m.cfg.AllowedOrigins,
			AllowMethods: "GET,OPTIONS",
			AllowHeaders: "Content-Type",
		}))
	}

	m.setupRoutes(app)
	return app
}

// Stop disconnects WebSocket clients and shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	// Live sockets end with a close frame before the listener goes away.
	if n := m.relay.Hub().CloseAll(); n > 0 {
		m.logger.Info("Disconnected WebSocket clients", "count", n)
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"port": m.cfg.Port}
	if m.relay != nil {
		stats := m.relay.Hub().Stats()
		details["connected_clients"] = stats.Clients
		details["active_rooms"] = stats.Rooms
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// errorHandler handles errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
