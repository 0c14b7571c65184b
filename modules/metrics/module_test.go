package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/chat-relay/events"
	"github.com/example/chat-relay/modules/chat"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats chat.Stats

func (f fixedStats) Stats() chat.Stats { return chat.Stats(f) }

func TestModule_Name(t *testing.T) {
	assert.Equal(t, "metrics", NewModule().Name())
}

func TestModule_EventCounters(t *testing.T) {
	m := NewModule()
	ctx := context.Background()

	require.NoError(t, m.handleMessageSent(ctx, events.MessageSentEvent{Room: "Room1", Recipients: 3}, nil))
	require.NoError(t, m.handleMessageSent(ctx, events.MessageSentEvent{Room: "Room1", Recipients: 1}, nil))
	require.NoError(t, m.handleUserJoined(ctx, events.UserJoinedEvent{Room: "Room1"}, nil))
	require.NoError(t, m.handleUserLeft(ctx, events.UserLeftEvent{Room: "Room1"}, nil))
	require.NoError(t, m.handleUserLeft(ctx, events.UserLeftEvent{Room: "Room1", Disconnected: true}, nil))
	require.NoError(t, m.handleUserLeft(ctx, events.UserLeftEvent{Room: "Room2", Disconnected: true}, nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.joins))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leaves.WithLabelValues("leave")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.leaves.WithLabelValues("disconnect")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.messageRecipients))
}

func TestModule_StatsSource(t *testing.T) {
	m := NewModule()
	m.SetStatsSource(fixedStats{Clients: 4, Rooms: 2, Delivered: 10, Skipped: 1})
	// A second source is ignored rather than panicking on re-registration.
	m.SetStatsSource(fixedStats{})

	expected := `
# HELP chat_relay_connections Live connections.
# TYPE chat_relay_connections gauge
chat_relay_connections 4
# HELP chat_relay_rooms Non-empty rooms.
# TYPE chat_relay_rooms gauge
chat_relay_rooms 2
`
	err := testutil.GatherAndCompare(m.registry, strings.NewReader(expected),
		"chat_relay_connections", "chat_relay_rooms")
	assert.NoError(t, err)
	assert.True(t, m.Health(context.Background()).Details["hub_stats"].(bool))
}

func TestModule_Handler(t *testing.T) {
	m := NewModule()
	m.joins.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "chat_relay_room_joins_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
