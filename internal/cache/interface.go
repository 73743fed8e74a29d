package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// MessageCache holds ordered history snapshots. Keys are chosen by the
// caller and usually name a room.
type MessageCache interface {
	// Get returns ErrCacheMiss when the key has no live entry.
	Get(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	Set(ctx context.Context, roomID string, messages []domain.ChatMessage, ttl time.Duration) error
	Delete(ctx context.Context, roomID string) error
	Close() error
}
