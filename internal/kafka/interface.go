package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

// MessageProducer publishes stored messages to the event stream.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.ChatMessage) error
	Close() error
}

// NoopProducer is used when the event stream is disabled.
type NoopProducer struct{}

func (NoopProducer) ProduceMessage(context.Context, *domain.ChatMessage) error { return nil }
func (NoopProducer) Close() error { return nil }
