package api

import domain "github.com/example/chat-relay/domain/chat"

// RoomResponse is the API response for an active room.
type RoomResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// RoomListResponse is the API response for listing active rooms.
type RoomListResponse struct {
	Rooms []RoomResponse `json:"rooms"`
}

// MembersResponse is the API response for a room's members.
type MembersResponse struct {
	Room    string          `json:"room"`
	Members []domain.Member `json:"members"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
