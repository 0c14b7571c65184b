package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// chatRecord is the persisted row.
type chatRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"type:text;not null;default:''"`
	Message   string    `gorm:"type:text;not null"`
	Room      string    `gorm:"size:100;not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// TableName returns the persisted table name.
func (chatRecord) TableName() string {
	return "chats"
}

func (r chatRecord) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		Username:  r.Username,
		Body:      r.Message,
		Room:      r.Room,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// GormStore is a MessageStore backed by GORM.
type GormStore struct {
	db    *gorm.DB
	mu    sync.Mutex // serializes appends so ids and timestamps agree
	clock *clock
}

// OpenSQLite opens a SQLite database through GORM.
func OpenSQLite(path string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewGormStore migrates the schema and returns a store over db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&chatRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &GormStore{db: db, clock: newClock()}, nil
}

// Append implements MessageStore.
func (s *GormStore) Append(ctx context.Context, room, username, body string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := chatRecord{
		Username:  username,
		Message:   body,
		Room:      room,
		CreatedAt: s.clock.next(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	msg := record.toDomain()
	return &msg, nil
}

// History implements MessageStore.
func (s *GormStore) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	return s.HistoryBefore(ctx, room, 0, limit)
}

// HistoryBefore implements MessageStore.
func (s *GormStore) HistoryBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]domain.Message, error) {
	query := s.db.WithContext(ctx).Model(&chatRecord{})
	if room != "" {
		query = query.Where("room = ?", room)
	}
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []chatRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]domain.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.toDomain())
	}
	return messages, nil
}

// Ping implements MessageStore.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close implements MessageStore.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
