package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

func newMockLogger() types.Logger {
	return &mockLogger{}
}

// fakeStore is an in-memory MessageAppender.
type fakeStore struct {
	mu       sync.Mutex
	nextID   uint64
	messages []domain.Message
	err      error
}

func (f *fakeStore) Append(_ context.Context, room, username, body string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	msg := domain.Message{
		ID:        f.nextID,
		Username:  username,
		Body:      body,
		Room:      room,
		CreatedAt: time.Now().UTC(),
	}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// history returns the room's messages newest first.
func (f *fakeStore) history(room string) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Message, 0)
	for i := len(f.messages) - 1; i >= 0; i-- {
		if room == "" || f.messages[i].Room == room {
			out = append(out, f.messages[i])
		}
	}
	return out
}

var errStoreDown = errors.New("database is locked")

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestModule(t *testing.T, store MessageAppender, cfg Config) *Module {
	t.Helper()

	if cfg.OutboundBuffer == 0 {
		cfg.OutboundBuffer = 32
	}
	m := NewModule(cfg, newMockLogger())
	m.SetStore(store)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

// connect opens a session and discards its greeting.
func connect(t *testing.T, m *Module) *Session {
	t.Helper()

	s := m.Connect()
	frames := drain(t, s)
	require.Len(t, frames, 1)
	require.Equal(t, EventConnected, frames[0].Event)
	return s
}

// drain returns every frame currently buffered for s.
func drain(t *testing.T, s *Session) []received {
	t.Helper()

	var frames []received
	for {
		select {
		case raw, ok := <-s.Outbound():
			if !ok {
				return frames
			}
			var f received
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func framesOf(frames []received, event string) []received {
	var out []received
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func decodeMessage(t *testing.T, f received) domain.Message {
	t.Helper()
	var msg domain.Message
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	return msg
}

func decodeNotice(t *testing.T, f received) domain.Notice {
	t.Helper()
	var n domain.Notice
	require.NoError(t, json.Unmarshal(f.Data, &n))
	return n
}

func frameBytes(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	return raw
}
