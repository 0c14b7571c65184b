// Package store persists chat messages and serves room history.
package store

import (
	"context"
	"sync"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
)

// MaxHistoryLimit caps a single history read.
const MaxHistoryLimit = 1000

// MessageStore persists messages and reads them back newest first.
type MessageStore interface {
	// Append records a message and returns it with its store-assigned
	// identity and timestamp. Failures wrap domain.ErrPersistence.
	Append(ctx context.Context, room, username, body string) (*domain.Message, error)
	// History returns messages newest first. An empty room means all rooms;
	// a limit of zero means no limit.
	History(ctx context.Context, room string, limit int) ([]domain.Message, error)
	// HistoryBefore is History restricted to messages with an id below
	// beforeID (zero means no bound). Ids grow with created_at, so the last
	// id of one page is the cursor of the next.
	HistoryBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]domain.Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// clock hands out strictly increasing UTC timestamps at microsecond
// precision, the finest both drivers round-trip.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock() *clock {
	return &clock{now: time.Now}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
