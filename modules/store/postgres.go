package store

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore is a MessageStore backed by a pgx connection pool.
type PostgresStore struct {
	pool  *pgxpool.Pool
	mu    sync.Mutex
	clock *clock
}

// NewPostgresStore connects to databaseURL and applies the embedded migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, clock: newClock()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate executes the embedded .sql files in name order.
func (s *PostgresStore) migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Append implements MessageStore.
func (s *PostgresStore) Append(ctx context.Context, room, username, body string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.Message{
		Username:  username,
		Body:      body,
		Room:      room,
		CreatedAt: s.clock.next(),
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chats (username, message, room, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, msg.Username, msg.Body, msg.Room, msg.CreatedAt)

	if err := row.Scan(&msg.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return &msg, nil
}

// History implements MessageStore.
func (s *PostgresStore) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	return s.HistoryBefore(ctx, room, 0, limit)
}

// HistoryBefore implements MessageStore.
func (s *PostgresStore) HistoryBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]domain.Message, error) {
	var (
		sb    strings.Builder
		args  []any
		where []string
	)
	sb.WriteString("SELECT id, username, message, room, created_at FROM chats")
	if room != "" {
		args = append(args, room)
		where = append(where, fmt.Sprintf("room = $%d", len(args)))
	}
	if beforeID > 0 {
		args = append(args, int64(beforeID))
		where = append(where, fmt.Sprintf("id < $%d", len(args)))
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Body, &m.Room, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Ping implements MessageStore.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements MessageStore.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
