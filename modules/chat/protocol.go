package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	domain "github.com/example/chat-relay/domain/chat"
)

// MaxRoomNameLength bounds room names accepted from clients.
const MaxRoomNameLength = 100

// Inbound event names. The space-separated and camel-case forms are the
// names used by the legacy browser client and are accepted as aliases.
const (
	EventSend       = "send"
	EventJoinRoom   = "join-room"
	EventLeaveRoom  = "leave-room"
	EventSetName    = "set-name"
	EventDisconnect = "disconnect"
)

var eventAliases = map[string]string{
	"sendMessage": EventSend,
	"join room":   EventJoinRoom,
	"leave room":  EventLeaveRoom,
}

// Outbound event names.
const (
	EventConnected    = "connected"
	EventNewMessage   = "new-message"
	EventSystemNotice = "system-notice"
	EventError        = "error"
)

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// frame is the outbound counterpart of Envelope.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Error string `json:"error"`
	Event string `json:"event,omitempty"`
}

// ConnectedPayload is sent once after the transport is established.
type ConnectedPayload struct {
	ID string `json:"id"`
}

// Event is a validated inbound event.
type Event interface {
	Name() string
}

// SendEvent asks to persist and broadcast a message to the current room.
type SendEvent struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Room     string `json:"room"`
}

// JoinEvent asks to join a room, leaving the current one.
type JoinEvent struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// LeaveEvent asks to leave the current room.
type LeaveEvent struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// SetNameEvent changes the connection's display name.
type SetNameEvent struct {
	Username string `json:"username"`
}

// DisconnectEvent ends the session.
type DisconnectEvent struct{}

func (SendEvent) Name() string       { return EventSend }
func (JoinEvent) Name() string       { return EventJoinRoom }
func (LeaveEvent) Name() string      { return EventLeaveRoom }
func (SetNameEvent) Name() string    { return EventSetName }
func (DisconnectEvent) Name() string { return EventDisconnect }

// DecodeEvent parses and validates a raw inbound frame.
// Malformed frames yield an error wrapping domain.ErrInvalidEvent.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	name := env.Event
	if alias, ok := eventAliases[name]; ok {
		name = alias
	}

	switch name {
	case EventSend:
		var ev SendEvent
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if !utf8.ValidString(ev.Message) || !utf8.ValidString(ev.Username) {
			return nil, fmt.Errorf("%w: invalid characters", domain.ErrInvalidEvent)
		}
		return ev, nil

	case EventJoinRoom:
		var ev JoinEvent
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if err := ValidateRoomName(ev.Room); err != nil {
			return nil, err
		}
		return ev, nil

	case EventLeaveRoom:
		var ev LeaveEvent
		if len(env.Data) > 0 {
			if err := decodeData(env.Data, &ev); err != nil {
				return nil, err
			}
		}
		return ev, nil

	case EventSetName:
		var ev SetNameEvent
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case EventDisconnect:
		return DisconnectEvent{}, nil

	case "":
		return nil, fmt.Errorf("%w: missing event name", domain.ErrInvalidEvent)

	default:
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidEvent, env.Event)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: missing data", domain.ErrInvalidEvent)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	return nil
}

// ValidateRoomName validates a room name.
func ValidateRoomName(room string) error {
	if room == "" {
		return fmt.Errorf("%w: room is required", domain.ErrInvalidEvent)
	}
	if len(room) > MaxRoomNameLength {
		return fmt.Errorf("%w: room name exceeds maximum length", domain.ErrInvalidEvent)
	}
	if !utf8.ValidString(room) {
		return fmt.Errorf("%w: room name contains invalid characters", domain.ErrInvalidEvent)
	}
	return nil
}

// encodeFrame renders an outbound frame.
func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(frame{Event: event, Data: data})
}
