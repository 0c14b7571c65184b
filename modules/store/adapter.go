package store

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// HistoryPort reads persisted messages.
type HistoryPort interface {
	History(ctx context.Context, room string, limit int) ([]domain.Message, error)
}

// HistoryAdapter implements HistoryPort using the service container.
type HistoryAdapter struct {
	container mono.ServiceContainer
}

// NewHistoryAdapter creates a new HistoryAdapter.
func NewHistoryAdapter(container mono.ServiceContainer) HistoryPort {
	if container == nil {
		panic("store: ServiceContainer is nil")
	}
	return &HistoryAdapter{container: container}
}

// History retrieves messages newest first, following the service's pages
// until the limit is met or the history is exhausted.
func (a *HistoryAdapter) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	req := HistoryRequest{Room: room, Limit: limit}
	for {
		var resp HistoryResponse
		if err := helper.CallRequestReplyService(
			ctx,
			a.container,
			ServiceHistory,
			json.Marshal,
			json.Unmarshal,
			&req,
			&resp,
		); err != nil {
			return nil, fmt.Errorf("failed to get history: %w", err)
		}
		messages = append(messages, resp.Messages...)

		if resp.NextBeforeID == 0 {
			return messages, nil
		}
		if req.BeforeID != 0 && resp.NextBeforeID >= req.BeforeID {
			return nil, fmt.Errorf("failed to get history: cursor did not advance past %d", req.BeforeID)
		}
		if limit > 0 {
			req.Limit = limit - len(messages)
			if req.Limit <= 0 {
				return messages, nil
			}
		}
		req.BeforeID = resp.NextBeforeID
	}
}
