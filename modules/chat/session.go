package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/time/rate"
)

// ErrSessionClosed is returned for events handled after the session ended.
var ErrSessionClosed = errors.New("session closed")

// Session is the per-connection protocol state machine:
// Connected -> InRoom(room) -> Terminated.
//
// Events of one session must be handled sequentially; distinct sessions
// may run concurrently.
type Session struct {
	module  *Module
	client  *Client
	limiter *rate.Limiter
	logger  types.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// ID returns the connection identity.
func (s *Session) ID() string {
	return s.client.ID()
}

// Outbound returns the frames addressed to this connection.
func (s *Session) Outbound() <-chan []byte {
	return s.client.Outbound()
}

// HandleFrame decodes and handles one raw inbound frame. Errors the client
// can act on are reported back to this connection only; the rest are logged
// and dropped. The returned error is informational except for
// ErrSessionClosed, after which the transport should stop reading.
func (s *Session) HandleFrame(ctx context.Context, raw []byte) error {
	ev, err := DecodeEvent(raw)
	if err != nil {
		s.logger.Warn("Malformed event", "clientID", s.ID(), "error", err)
		s.reportError("", err)
		return err
	}

	err = s.Handle(ctx, ev)
	switch {
	case err == nil, errors.Is(err, ErrSessionClosed):
	case errors.Is(err, domain.ErrPersistence),
		errors.Is(err, domain.ErrInvalidEvent),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrRateLimited):
		s.logger.Warn("Event rejected", "clientID", s.ID(), "event", ev.Name(), "error", err)
		s.reportError(ev.Name(), err)
	default:
		s.logger.Debug("Event dropped", "clientID", s.ID(), "event", ev.Name(), "error", err)
	}
	return err
}

// Handle applies a validated event.
func (s *Session) Handle(ctx context.Context, ev Event) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	switch ev := ev.(type) {
	case JoinEvent:
		return s.join(ctx, ev)
	case LeaveEvent:
		return s.leave(ctx, ev)
	case SendEvent:
		return s.send(ctx, ev)
	case SetNameEvent:
		return s.module.hub.SetDisplayName(s.ID(), ev.Username)
	case DisconnectEvent:
		s.Close(ctx)
		return ErrSessionClosed
	default:
		return fmt.Errorf("%w: unsupported event %T", domain.ErrInvalidEvent, ev)
	}
}

func (s *Session) join(ctx context.Context, ev JoinEvent) error {
	if err := ValidateRoomName(ev.Room); err != nil {
		return err
	}
	if ev.Username != "" {
		if err := s.module.hub.SetDisplayName(s.ID(), ev.Username); err != nil {
			return err
		}
	}

	tr, err := s.module.hub.Join(s.ID(), ev.Room)
	if err != nil {
		return err
	}
	if tr.Noop() {
		s.logger.Debug("Already in room", "clientID", s.ID(), "room", ev.Room)
		return nil
	}

	if tr.Left != "" {
		s.module.announceLeft(ctx, tr, false)
	}
	s.module.announceJoined(ctx, tr)
	return nil
}

func (s *Session) leave(ctx context.Context, ev LeaveEvent) error {
	room, ok := s.module.hub.RoomOf(s.ID())
	if !ok {
		return domain.ErrNotInRoom
	}
	if ev.Room != "" && ev.Room != room {
		return fmt.Errorf("%w: %q", domain.ErrNotInRoom, ev.Room)
	}

	tr, err := s.module.hub.Leave(s.ID())
	if err != nil {
		return err
	}
	s.module.announceLeft(ctx, tr, false)
	return nil
}

func (s *Session) send(ctx context.Context, ev SendEvent) error {
	if ev.Message == "" {
		return domain.ErrEmptyMessage
	}
	if limit := s.module.cfg.MaxMessageLength; limit > 0 && utf8.RuneCountInString(ev.Message) > limit {
		return domain.ErrMessageTooLong
	}

	room, ok := s.module.hub.RoomOf(s.ID())
	if !ok {
		return domain.ErrNotInRoom
	}
	if ev.Room != "" && ev.Room != room {
		return fmt.Errorf("%w: %q", domain.ErrNotInRoom, ev.Room)
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return domain.ErrRateLimited
	}

	if ev.Username != "" {
		if err := s.module.hub.SetDisplayName(s.ID(), ev.Username); err != nil {
			return err
		}
	}
	username, err := s.module.hub.DisplayName(s.ID())
	if err != nil {
		return err
	}

	return s.module.persistAndDeliver(ctx, s.ID(), room, username, ev.Message)
}

// Close unregisters the connection, leaving its room first. It is safe to
// call more than once.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		tr, ok := s.module.hub.Unregister(s.ID())
		if ok && tr.Left != "" {
			s.module.announceLeft(ctx, tr, true)
		}
		s.logger.Info("Connection closed", "clientID", s.ID())
	})
}

func (s *Session) reportError(event string, err error) {
	payload := ErrorPayload{Error: publicError(err), Event: event}
	if sendErr := s.module.broadcaster.SendTo(s.ID(), EventError, payload); sendErr != nil {
		s.logger.Debug("Failed to report error", "clientID", s.ID(), "error", sendErr)
	}
}

// publicError hides store internals from clients.
func publicError(err error) string {
	if errors.Is(err, domain.ErrPersistence) {
		return domain.ErrPersistence.Error()
	}
	return err.Error()
}
