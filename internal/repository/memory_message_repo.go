package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

// MemoryMessageRepository keeps messages in process memory. Used for local
// runs and tests.
type MemoryMessageRepository struct {
	mu    sync.RWMutex
	rooms map[string][]domain.ChatMessage
	ids   map[string]struct{}
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		rooms: make(map[string][]domain.ChatMessage),
		ids:   make(map[string]struct{}),
	}
}

func (r *MemoryMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[msg.ID]; dup {
		return fmt.Errorf("duplicate message id %s", msg.ID)
	}
	r.ids[msg.ID] = struct{}{}
	r.rooms[msg.RoomID] = append(r.rooms[msg.RoomID], *msg)
	return nil
}

func (r *MemoryMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.rooms[roomID]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *MemoryMessageRepository) Close() error {
	return nil
}
