package store

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires Redis running on localhost:6379
const testRedisAddr = "localhost:6379"

// setupTestCache wraps an in-memory store with a Redis cache, skipping when
// Redis is not reachable.
func setupTestCache(t *testing.T, prefix string) (*CachedStore, *GormStore) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	db, err := OpenSQLite(":memory:", false)
	require.NoError(t, err)
	backend, err := NewGormStore(db)
	require.NoError(t, err)

	cache := NewCachedStore(backend, client, prefix, time.Minute, newMockLogger())
	require.NoError(t, cache.deletePattern(ctx, prefix+"*"))
	t.Cleanup(func() {
		_ = cache.deletePattern(ctx, prefix+"*")
		_ = cache.Close()
	})
	return cache, backend
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Room1", "Room1"},
		{"a*b", `a\*b`},
		{"what?", `what\?`},
		{"[x]", `\[x\]`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeGlob(tt.in))
	}
}

func TestCachedStore_Keys(t *testing.T) {
	c := &CachedStore{prefix: "chat:"}
	assert.Equal(t, "chat:history:0:0:0:all", c.historyKey(0, "", 0, 0))
	assert.Equal(t, "chat:history:3:17:50:room:Room1", c.historyKey(3, "Room1", 17, 50))
	assert.Equal(t, "chat:gen:all", c.generationKey(""))
	assert.Equal(t, "chat:gen:room:Room1", c.generationKey("Room1"))
}

func TestCachedStore_CacheAside(t *testing.T) {
	cache, backend := setupTestCache(t, "test-chat-aside:")
	ctx := context.Background()

	_, err := cache.Append(ctx, "Room1", "alice", "hi")
	require.NoError(t, err)

	first, err := cache.History(ctx, "Room1", 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.History(ctx, "Room1", 0)
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID)

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	// A write through the backend alone is not visible until invalidation.
	_, err = backend.Append(ctx, "Room1", "bob", "sneaky")
	require.NoError(t, err)
	stale, err := cache.History(ctx, "Room1", 0)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	_, err = cache.Append(ctx, "Room1", "alice", "again")
	require.NoError(t, err)
	fresh, err := cache.History(ctx, "Room1", 0)
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestCachedStore_InvalidatesAllRoomsView(t *testing.T) {
	cache, _ := setupTestCache(t, "test-chat-all:")
	ctx := context.Background()

	all, err := cache.History(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = cache.Append(ctx, "Room[1]", "alice", "hi")
	require.NoError(t, err)

	all, err = cache.History(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// pausingStore holds the first history read after the backend answered, so
// that an append can complete in between.
type pausingStore struct {
	MessageStore
	once   sync.Once
	paused chan struct{}
	resume chan struct{}
}

func (p *pausingStore) HistoryBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]domain.Message, error) {
	messages, err := p.MessageStore.HistoryBefore(ctx, room, beforeID, limit)
	p.once.Do(func() {
		close(p.paused)
		<-p.resume
	})
	return messages, err
}

func TestCachedStore_ReadRacingAppendIsNotServedStale(t *testing.T) {
	cache, backend := setupTestCache(t, "test-chat-race:")
	ctx := context.Background()

	_, err := backend.Append(ctx, "Room1", "alice", "first")
	require.NoError(t, err)

	paused := &pausingStore{
		MessageStore: backend,
		paused:       make(chan struct{}),
		resume:       make(chan struct{}),
	}
	cache.next = paused

	done := make(chan []domain.Message, 1)
	go func() {
		messages, err := cache.History(ctx, "Room1", 0)
		assert.NoError(t, err)
		done <- messages
	}()

	<-paused.paused
	_, err = cache.Append(ctx, "Room1", "bob", "second")
	require.NoError(t, err)
	close(paused.resume)

	// The racing read saw the old history and cached it late.
	require.Len(t, <-done, 1)

	fresh, err := cache.History(ctx, "Room1", 0)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}
