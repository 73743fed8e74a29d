package history

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

// HistoryService is the cache-aside read path for room history.
type HistoryService interface {
	// GetHistory returns the room's messages in timestamp order, served from
	// cache while the entry is live.
	GetHistory(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	// Invalidate drops the room's entry. Any fetch already in flight for the
	// room will not repopulate the cache with its older snapshot.
	Invalidate(ctx context.Context, roomID string) error
}

// Querier is the read half of the message store.
type Querier interface {
	QueryByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
}
