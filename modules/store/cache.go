package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CacheStats is a snapshot of history cache counters.
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// CachedStore decorates a MessageStore with a Redis cache-aside layer for
// history reads. Appends go straight to the underlying store and then bump
// the generation of the affected views.
//
// Every cached read is keyed by the generation it observed before querying
// the store. A read that races an append therefore writes its result under a
// generation nobody asks for any more, and can never be served stale.
type CachedStore struct {
	next    MessageStore
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	sfGroup singleflight.Group // Prevents cache stampede
	logger  types.Logger

	hits     atomic.Uint64
	misses   atomic.Uint64
	failures atomic.Uint64
}

// NewCachedStore wraps next with a history cache.
func NewCachedStore(next MessageStore, client *redis.Client, prefix string, ttl time.Duration, logger types.Logger) *CachedStore {
	return &CachedStore{
		next:   next,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// generationKey names the counter versioning one view: a room, or all rooms.
func (c *CachedStore) generationKey(room string) string {
	if room == "" {
		return c.prefix + "gen:all"
	}
	return c.prefix + "gen:room:" + room
}

// historyKey renders the cache key of one history read. Numeric fields come
// first so that a room name can never be mistaken for them.
func (c *CachedStore) historyKey(gen int64, room string, beforeID uint64, limit int) string {
	if room == "" {
		return fmt.Sprintf("%shistory:%d:%d:%d:all", c.prefix, gen, beforeID, limit)
	}
	return fmt.Sprintf("%shistory:%d:%d:%d:room:%s", c.prefix, gen, beforeID, limit, room)
}

// Append implements MessageStore.
func (c *CachedStore) Append(ctx context.Context, room, username, body string) (*domain.Message, error) {
	msg, err := c.next.Append(ctx, room, username, body)
	if err != nil {
		return nil, err
	}

	if err := c.invalidate(ctx, room); err != nil {
		c.failures.Add(1)
		c.logger.Warn("Failed to invalidate history cache", "room", room, "error", err)
	}
	return msg, nil
}

// History implements MessageStore.
func (c *CachedStore) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	return c.HistoryBefore(ctx, room, 0, limit)
}

// HistoryBefore implements MessageStore.
func (c *CachedStore) HistoryBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]domain.Message, error) {
	gen, err := c.client.Get(ctx, c.generationKey(room)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Without a generation the cache cannot be trusted; go to the store.
		c.failures.Add(1)
		c.logger.Warn("History cache generation read failed", "room", room, "error", err)
		return c.next.HistoryBefore(ctx, room, beforeID, limit)
	}
	key := c.historyKey(gen, room, beforeID, limit)

	// Step 1: Check cache first
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []domain.Message
		if err := json.Unmarshal(data, &cached); err == nil {
			c.hits.Add(1)
			return cached, nil
		}
		c.failures.Add(1)
	case errors.Is(err, redis.Nil):
	default:
		// Continue to the store on cache error
		c.failures.Add(1)
		c.logger.Warn("History cache read failed", "key", key, "error", err)
	}
	c.misses.Add(1)

	// Step 2: Cache miss - query the store once per key
	val, err, _ := c.sfGroup.Do(key, func() (any, error) {
		return c.next.HistoryBefore(ctx, room, beforeID, limit)
	})
	if err != nil {
		return nil, err
	}
	messages, _ := val.([]domain.Message)

	// Step 3: Populate cache
	if encoded, err := json.Marshal(messages); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.failures.Add(1)
			c.logger.Warn("Failed to cache history", "key", key, "error", err)
		}
	}
	return messages, nil
}

// invalidate moves the room's view and the all-rooms view to a new
// generation, then drops the entries cached under older ones.
func (c *CachedStore) invalidate(ctx context.Context, room string) error {
	if _, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey(""))
		pipe.Incr(ctx, c.generationKey(room))
		return nil
	}); err != nil {
		return fmt.Errorf("cache generation bump error: %w", err)
	}

	patterns := []string{
		c.prefix + "history:*:all",
		c.prefix + "history:*:room:" + escapeGlob(room),
	}
	for _, pattern := range patterns {
		if err := c.deletePattern(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

func (c *CachedStore) deletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete error: %w", err)
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}

// escapeGlob quotes the Redis glob metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Stats returns the cache counters.
func (c *CachedStore) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return CacheStats{
		Hits:    hits,
		Misses:  misses,
		Errors:  c.failures.Load(),
		HitRate: hitRate,
	}
}

// Ping implements MessageStore.
func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.next.Ping(ctx); err != nil {
		return err
	}
	return c.client.Ping(ctx).Err()
}

// Close implements MessageStore.
func (c *CachedStore) Close() error {
	return errors.Join(c.client.Close(), c.next.Close())
}
