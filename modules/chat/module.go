package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/time/rate"
)

// MessageAppender persists a chat message and returns it with its assigned
// identity and timestamp.
type MessageAppender interface {
	Append(ctx context.Context, room, username, body string) (*domain.Message, error)
}

// Config holds the relay tuning knobs.
type Config struct {
	OutboundBuffer   int
	MaxMessageLength int
	SendRate         float64
	SendBurst        int
	AppendTimeout    time.Duration
}

// Module is the room-scoped relay: connection registry, room directory and
// the per-connection protocol.
type Module struct {
	cfg         Config
	hub         *Hub
	broadcaster *Broadcaster
	seq         *sequencer
	store       MessageAppender
	eventBus    mono.EventBus
	logger      types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = 5 * time.Second
	}
	hub := NewHub(cfg.OutboundBuffer)
	return &Module{
		cfg:         cfg,
		hub:         hub,
		broadcaster: NewBroadcaster(hub, logger),
		seq:         newSequencer(),
		logger:      logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetStore sets the message store (called from main.go).
func (m *Module) SetStore(store MessageAppender) {
	m.store = store
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
	}
}

// Start verifies the module is wired.
func (m *Module) Start(_ context.Context) error {
	if m.store == nil {
		return errors.New("message store dependency not set")
	}
	m.logger.Info("Chat module started",
		"outboundBuffer", m.hub.bufferSize,
		"maxMessageLength", m.cfg.MaxMessageLength)
	return nil
}

// Stop disconnects every client.
func (m *Module) Stop(_ context.Context) error {
	count := m.hub.CloseAll()
	m.logger.Info("Chat module stopped", "disconnected", count)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	stats := m.hub.Stats()
	return mono.HealthStatus{
		Healthy: m.store != nil,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": stats.Clients,
			"active_rooms":      stats.Rooms,
			"frames_delivered":  stats.Delivered,
			"frames_skipped":    stats.Skipped,
		},
	}
}

// Hub returns the connection registry.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Connect registers a new connection and greets it with its identity.
func (m *Module) Connect() *Session {
	client := m.hub.Register()
	s := &Session{
		module: m,
		client: client,
		logger: m.logger,
	}
	if m.cfg.SendRate > 0 {
		burst := m.cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(m.cfg.SendRate), burst)
	}

	if err := m.broadcaster.SendTo(client.ID(), EventConnected, ConnectedPayload{ID: client.ID()}); err != nil {
		m.logger.Warn("Failed to greet client", "clientID", client.ID(), "error", err)
	}
	m.logger.Info("Client connected", "clientID", client.ID())
	return s
}

// persistAndDeliver holds the room's sequencer lock from append to fan-out,
// so that delivery order within a room equals persistence order.
func (m *Module) persistAndDeliver(ctx context.Context, clientID, room, username, body string) error {
	unlock := m.seq.lock(room)
	defer unlock()

	appendCtx, cancel := context.WithTimeout(ctx, m.cfg.AppendTimeout)
	defer cancel()

	msg, err := m.store.Append(appendCtx, room, username, body)
	if err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		return err
	}

	recipients := m.broadcaster.Deliver(room, *msg)
	m.logger.Debug("Message relayed", "clientID", clientID, "room", room, "messageID", msg.ID, "recipients", recipients)

	if m.eventBus == nil {
		return nil
	}
	event := events.MessageSentEvent{
		MessageID:    msg.ID,
		Room:         room,
		ConnectionID: clientID,
		Username:     username,
		Recipients:   recipients,
		Timestamp:    msg.CreatedAt,
	}
	if err := events.MessageSentV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish MessageSent event", "error", err)
	}
	return nil
}

func (m *Module) announceJoined(_ context.Context, tr Transition) {
	unlock := m.seq.lock(tr.Joined)
	m.broadcaster.Announce(tr.Joined, fmt.Sprintf("%s joined the room %s", speaker(tr), tr.Joined), "")
	unlock()

	m.logger.Info("User joined room", "clientID", tr.ID, "room", tr.Joined)
	if m.eventBus == nil {
		return
	}
	event := events.UserJoinedEvent{
		Room:         tr.Joined,
		ConnectionID: tr.ID,
		Username:     tr.Username,
		Timestamp:    time.Now().UTC(),
	}
	if err := events.UserJoinedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish UserJoined event", "error", err)
	}
}

func (m *Module) announceLeft(_ context.Context, tr Transition, disconnected bool) {
	unlock := m.seq.lock(tr.Left)
	m.broadcaster.Announce(tr.Left, fmt.Sprintf("%s has left the room %s", speaker(tr), tr.Left), tr.ID)
	unlock()

	m.logger.Info("User left room", "clientID", tr.ID, "room", tr.Left, "disconnected", disconnected)
	if m.eventBus == nil {
		return
	}
	event := events.UserLeftEvent{
		Room:         tr.Left,
		ConnectionID: tr.ID,
		Username:     tr.Username,
		Disconnected: disconnected,
		Timestamp:    time.Now().UTC(),
	}
	if err := events.UserLeftV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish UserLeft event", "error", err)
	}
}

// speaker names a connection in system notices, falling back to its ID.
func speaker(tr Transition) string {
	if tr.Username != "" {
		return tr.Username
	}
	return tr.ID
}
