package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// historyReader is a module depending on the store, as the HTTP layer does.
type historyReader struct {
	history HistoryPort
}

func (r *historyReader) Name() string                  { return "reader" }
func (r *historyReader) Start(_ context.Context) error { return nil }
func (r *historyReader) Stop(_ context.Context) error  { return nil }
func (r *historyReader) Dependencies() []string        { return []string{"store"} }
func (r *historyReader) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "store" {
		r.history = NewHistoryAdapter(container)
	}
}

// startHistoryApp runs a mono application with a SQLite store module and a
// reader wired to it through the history service.
func startHistoryApp(t *testing.T) (*Module, HistoryPort) {
	t.Helper()

	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelError), // Suppress logs in tests
	)
	require.NoError(t, err)

	storeModule := NewModule(Config{Driver: DriverSQLite, DBPath: ":memory:"}, newMockLogger())
	reader := &historyReader{}
	require.NoError(t, app.Register(storeModule))
	require.NoError(t, app.Register(reader))

	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() {
		_ = app.Stop(context.Background())
	})

	require.NotNil(t, reader.history)
	return storeModule, reader.history
}

func TestHistoryAdapter_LargeHistorySpansPages(t *testing.T) {
	storeModule, history := startHistoryApp(t)
	ctx := context.Background()

	// 300 maximum-length messages encode to well over one bus payload.
	body := strings.Repeat("x", 5000)
	for i := 0; i < 300; i++ {
		room := "Room1"
		if i%3 == 2 {
			room = "Room2"
		}
		_, err := storeModule.Append(ctx, room, fmt.Sprintf("user%d", i), body)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		room  string
		limit int
		want  int
	}{
		{name: "all rooms", want: 300},
		{name: "one room", room: "Room1", want: 200},
		{name: "limit across pages", limit: 250, want: 250},
		{name: "limit within a page", room: "Room2", limit: 7, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := history.History(ctx, tt.room, tt.limit)
			require.NoError(t, err)
			require.Len(t, messages, tt.want)

			direct, err := storeModule.History(ctx, tt.room, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, ids(direct), ids(messages))
		})
	}
}

func TestHistoryAdapter_EmptyHistory(t *testing.T) {
	_, history := startHistoryApp(t)

	messages, err := history.History(context.Background(), "Nowhere", 0)
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestModule_HistoryPages(t *testing.T) {
	m := startSQLiteModule(t)
	ctx := context.Background()

	big := strings.Repeat("y", historyPageByteLimit/4)
	var appended []*domain.Message
	for i := 0; i < 6; i++ {
		msg, err := m.Append(ctx, "Room1", "alice", big)
		require.NoError(t, err)
		appended = append(appended, msg)
	}

	// Only three such messages fit in one reply.
	first, err := m.history(ctx, HistoryRequest{Room: "Room1"}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, first.Count)
	assert.Equal(t, appended[5].ID, first.Messages[0].ID)
	assert.Equal(t, appended[3].ID, first.NextBeforeID)

	second, err := m.history(ctx, HistoryRequest{Room: "Room1", BeforeID: first.NextBeforeID}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, second.Count)
	assert.Equal(t, appended[2].ID, second.Messages[0].ID)
	assert.Equal(t, appended[0].ID, second.Messages[2].ID)
	assert.Zero(t, second.NextBeforeID)
}

func TestModule_HistoryPageHonorsLimit(t *testing.T) {
	m := startSQLiteModule(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.Append(ctx, "Room1", "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	resp, err := m.history(ctx, HistoryRequest{Room: "Room1", Limit: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Zero(t, resp.NextBeforeID)

	resp, err = m.history(ctx, HistoryRequest{Room: "Room1", Limit: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Count)
	assert.Zero(t, resp.NextBeforeID)
}

func ids(messages []domain.Message) []uint64 {
	out := make([]uint64, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}
