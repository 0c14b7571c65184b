package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// One history reply stays well below the bus payload limit (1 MB by default).
const (
	historyPageSize      = 200
	historyPageByteLimit = 512 * 1024
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the message store.
type Config struct {
	Driver      string
	DBPath      string
	DatabaseURL string
	DBDebug     bool

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration
	CachePrefix   string
}

// Module owns the message store and serves history over request-reply.
type Module struct {
	cfg    Config
	store  MessageStore
	cache  *CachedStore
	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a store module that opens its backend on Start.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// NewModuleWithStore creates a store module over an already opened store.
func NewModuleWithStore(store MessageStore, logger types.Logger) *Module {
	return &Module{store: store, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceHistory, json.Unmarshal, json.Marshal, m.history,
	); err != nil {
		return fmt.Errorf("failed to register history service: %w", err)
	}

	log.Printf("[store] Registered services: services.store.%s", ServiceHistory)
	return nil
}

// Start opens the configured backend and the optional history cache.
func (m *Module) Start(ctx context.Context) error {
	if m.store != nil {
		return nil
	}

	var backend MessageStore
	switch m.cfg.Driver {
	case DriverPostgres:
		log.Printf("[store] Connecting to PostgreSQL")
		pg, err := NewPostgresStore(ctx, m.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open postgres store: %w", err)
		}
		backend = pg

	case DriverSQLite, "":
		log.Printf("[store] Connecting to SQLite database: %s", m.cfg.DBPath)
		db, err := OpenSQLite(m.cfg.DBPath, m.cfg.DBDebug)
		if err != nil {
			return err
		}
		gs, err := NewGormStore(db)
		if err != nil {
			return err
		}
		backend = gs

	default:
		return fmt.Errorf("unknown store driver %q", m.cfg.Driver)
	}

	m.store = backend
	if m.cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     m.cfg.RedisAddr,
		Password: m.cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		m.logger.Warn("Redis unavailable, history cache disabled", "addr", m.cfg.RedisAddr, "error", err)
		return nil
	}
	m.cache = NewCachedStore(backend, client, m.cfg.CachePrefix, m.cfg.CacheTTL, m.logger)
	m.store = m.cache
	log.Printf("[store] History cache enabled (redis %s, ttl %s)", m.cfg.RedisAddr, m.cfg.CacheTTL)
	return nil
}

// Stop closes the store.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	log.Printf("[store] Module stopped")
	return nil
}

// Health pings the store and reports cache counters.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store not initialized",
		}
	}
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store ping failed: %v", err),
		}
	}

	details := map[string]any{"driver": m.driver()}
	if m.cache != nil {
		details["cache"] = m.cache.Stats()
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

func (m *Module) driver() string {
	if m.cfg.Driver == "" {
		return DriverSQLite
	}
	return m.cfg.Driver
}

// Append persists a message. It is the relay's write path.
func (m *Module) Append(ctx context.Context, room, username, body string) (*domain.Message, error) {
	if m.store == nil {
		return nil, fmt.Errorf("%w: store not started", domain.ErrPersistence)
	}
	return m.store.Append(ctx, room, username, body)
}

// History reads messages newest first.
func (m *Module) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if err := m.checkHistory(limit); err != nil {
		return nil, err
	}
	return m.store.History(ctx, room, limit)
}

func (m *Module) checkHistory(limit int) error {
	if m.store == nil {
		return fmt.Errorf("store not started")
	}
	if limit < 0 || limit > MaxHistoryLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxHistoryLimit)
	}
	return nil
}

// history serves one page of a history read. The page ends early once its
// encoded messages reach historyPageByteLimit; at least one message is
// always returned so that paging makes progress.
func (m *Module) history(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	if err := m.checkHistory(req.Limit); err != nil {
		return HistoryResponse{}, err
	}

	fetch := historyPageSize
	if req.Limit > 0 && req.Limit < fetch {
		fetch = req.Limit
	}
	rows, err := m.store.HistoryBefore(ctx, req.Room, req.BeforeID, fetch)
	if err != nil {
		return HistoryResponse{}, err
	}

	n, size := 0, 0
	for _, msg := range rows {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return HistoryResponse{}, fmt.Errorf("failed to encode message %d: %w", msg.ID, err)
		}
		if n > 0 && size+len(encoded) > historyPageByteLimit {
			break
		}
		size += len(encoded)
		n++
	}

	resp := HistoryResponse{
		Messages: append([]domain.Message{}, rows[:n]...),
		Count:    n,
	}
	more := n < len(rows) || len(rows) == fetch
	if n > 0 && more && (req.Limit == 0 || n < req.Limit) {
		resp.NextBeforeID = rows[n-1].ID
	}
	return resp, nil
}
