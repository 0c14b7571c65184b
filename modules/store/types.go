package store

import domain "github.com/example/chat-relay/domain/chat"

// ServiceHistory is the request-reply service serving room history.
// The framework exposes it as "services.store.history".
const ServiceHistory = "history"

// HistoryRequest asks for a room's messages, newest first.
// An empty Room means every room; a zero Limit means no limit. A non-zero
// BeforeID continues from the NextBeforeID of a previous response.
type HistoryRequest struct {
	Room     string `json:"room,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	BeforeID uint64 `json:"before_id,omitempty"`
}

// HistoryResponse carries one page of the requested messages. A reply is
// bounded in size, so a long history spans several pages; NextBeforeID is
// zero on the last one.
type HistoryResponse struct {
	Messages     []domain.Message `json:"messages"`
	Count        int              `json:"count"`
	NextBeforeID uint64           `json:"next_before_id,omitempty"`
}
