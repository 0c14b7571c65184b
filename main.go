package main

import (
	"context"
	"log"
	"os"

	"github.com/example/chat-relay/config"
	"github.com/example/chat-relay/modules/api"
	"github.com/example/chat-relay/modules/chat"
	"github.com/example/chat-relay/modules/metrics"
	"github.com/example/chat-relay/modules/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("=== Chat Relay - Fiber WebSocket + EventBus ===")

	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
	cfg := config.Load()

	// LOG_LEVEL=error quiets the framework; anything else keeps info.
	level := mono.LogLevelInfo
	if cfg.LogLevel == "error" {
		level = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(level),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	storeModule := store.NewModule(store.Config{
		Driver:        cfg.StoreDriver,
		DBPath:        cfg.DBPath,
		DatabaseURL:   cfg.DatabaseURL,
		DBDebug:       cfg.DBDebug,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		CacheTTL:      cfg.CacheTTL,
		CachePrefix:   cfg.CachePrefix,
	}, logger.WithModule("store"))

	chatModule := chat.NewModule(chat.Config{
		OutboundBuffer:   cfg.OutboundBuffer,
		MaxMessageLength: cfg.MaxMessageLength,
		SendRate:         cfg.SendRate,
		SendBurst:        cfg.SendBurst,
		AppendTimeout:    cfg.AppendTimeout,
	}, logger.WithModule("chat"))

	metricsModule := metrics.NewModule()

	apiModule := api.NewModule(api.Config{
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger.WithModule("api"))

	// Wire in-process collaborators.
	// (Sessions and the hub are live objects, not request-reply services.)
	chatModule.SetStore(storeModule)
	metricsModule.SetStatsSource(chatModule.Hub())
	apiModule.SetRelay(chatModule)
	apiModule.SetMetricsHandler(metricsModule.Handler())

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - store: message persistence (ServiceProviderModule)
	// - chat: room relay (EventEmitterModule)
	// - metrics: event consumer (EventConsumerModule)
	// - api: driving adapter (Fiber HTTP/WebSocket server, depends on store)
	app.Register(storeModule)
	app.Register(chatModule)
	app.Register(metricsModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  - Store: %s", cfg.StoreDriver)
	if cfg.CacheEnabled() {
		log.Printf("  - History cache: redis %s (ttl %s)", cfg.RedisAddr, cfg.CacheTTL)
	}
	log.Println("")
	log.Printf("HTTP Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                   - Health check")
	log.Println("  GET    /metrics                  - Prometheus metrics")
	log.Println("  GET    /messages[/:room]         - Message history, newest first")
	log.Println("  GET    /api/chat[/:room]         - Message history (legacy path)")
	log.Println("  GET    /api/rooms                - Active rooms")
	log.Println("  GET    /api/rooms/:room/members  - Room members")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", cfg.Port)
	log.Println("  Frames: {\"event\": \"join-room\", \"data\": {\"room\": \"Room1\", \"username\": \"alice\"}}")
	log.Println("  Events: join-room, leave-room, send, set-name, disconnect")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
