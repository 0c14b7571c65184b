package chat

import "time"

// SystemUsername is the reserved sender of join and leave notices.
const SystemUsername = "System"

// Message represents a persisted chat message.
type Message struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notice is a transient system announcement scoped to one room.
type Notice struct {
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is a connection currently joined to a room.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Room     string `json:"room,omitempty"`
}
