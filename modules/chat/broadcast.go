package chat

import (
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Broadcaster fans frames out to the members of a room.
// It holds no state of its own beyond the hub it reads membership from.
type Broadcaster struct {
	hub    *Hub
	logger types.Logger
	now    func() time.Time
}

// NewBroadcaster creates a Broadcaster over hub.
func NewBroadcaster(hub *Hub, logger types.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		logger: logger,
		now:    time.Now,
	}
}

// Deliver sends msg to every current member of room and returns the number
// of members it was enqueued for. Recipients whose transport is gone or
// backed up are skipped without affecting the others.
func (b *Broadcaster) Deliver(room string, msg domain.Message) int {
	data, err := encodeFrame(EventNewMessage, msg)
	if err != nil {
		b.logger.Error("Failed to encode message", "room", room, "error", err)
		return 0
	}

	delivered, skipped := b.hub.deliver(room, data, "")
	if skipped > 0 {
		b.logger.Debug("Skipped recipients", "room", room, "skipped", skipped)
	}
	return delivered
}

// Announce sends a system notice to every member of room except exclude.
func (b *Broadcaster) Announce(room, text, exclude string) int {
	notice := domain.Notice{
		Username:  domain.SystemUsername,
		Text:      text,
		Room:      room,
		CreatedAt: b.now().UTC(),
	}
	data, err := encodeFrame(EventSystemNotice, notice)
	if err != nil {
		b.logger.Error("Failed to encode notice", "room", room, "error", err)
		return 0
	}

	delivered, _ := b.hub.deliver(room, data, exclude)
	return delivered
}

// SendTo sends a single frame to one connection.
func (b *Broadcaster) SendTo(clientID, event string, data any) error {
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	return b.hub.sendTo(clientID, payload)
}
