package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessageSentEvent is emitted after a message is persisted and delivered.
type MessageSentEvent struct {
	MessageID    uint64    `json:"message_id"`
	Room         string    `json:"room"`
	ConnectionID string    `json:"connection_id"`
	Username     string    `json:"username"`
	Recipients   int       `json:"recipients"`
	Timestamp    time.Time `json:"timestamp"`
}

// UserJoinedEvent is emitted when a connection joins a room.
type UserJoinedEvent struct {
	Room         string    `json:"room"`
	ConnectionID string    `json:"connection_id"`
	Username     string    `json:"username"`
	Timestamp    time.Time `json:"timestamp"`
}

// UserLeftEvent is emitted when a connection leaves a room, explicitly,
// by switching rooms, or by disconnecting.
type UserLeftEvent struct {
	Room         string    `json:"room"`
	ConnectionID string    `json:"connection_id"`
	Username     string    `json:"username"`
	Disconnected bool      `json:"disconnected"`
	Timestamp    time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"chat",
		"MessageSent",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"chat",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"chat",
		"UserLeft",
		"v1",
	)
)
