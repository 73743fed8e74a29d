package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/hub"
)

// ChatService drives one connection's session through its transitions.
// Handlers return the error that was reported to the client, if any.
type ChatService interface {
	HandleOnline(ctx context.Context, client *hub.Client, userID string) error
	HandleJoinChat(ctx context.Context, client *hub.Client, roomID string) error
	HandleSendMessage(ctx context.Context, client *hub.Client, msg domain.NewMessage) error
	HandleGetMessages(ctx context.Context, client *hub.Client, roomID string) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error
	Start(ctx context.Context) error
	Stop() error
}
