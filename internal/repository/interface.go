package repository

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

// MessageRepository is a durable backend for chat messages. Records arrive
// with id and timestamp already assigned.
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.ChatMessage) error

	// ListByRoom returns every message of roomID, oldest first.
	ListByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error)

	Close() error
}

// MessageStore is the contract the rest of the relay sees.
type MessageStore interface {
	Append(ctx context.Context, msg domain.NewMessage) (*domain.ChatMessage, error)
	QueryByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
}
