package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/audit"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/history"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/kafka"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/presence"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

type chatService struct {
	hub      *hub.Hub
	presence *presence.Registry
	store    repository.MessageStore
	history  history.HistoryService
	producer kafka.MessageProducer
	rooms    *roomLocks
}

func NewChatService(
	h *hub.Hub,
	reg *presence.Registry,
	store repository.MessageStore,
	hist history.HistoryService,
	producer kafka.MessageProducer,
) ChatService {
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return &chatService{
		hub:      h,
		presence: reg,
		store:    store,
		history:  hist,
		producer: producer,
		rooms:    newRoomLocks(),
	}
}

func (s *chatService) HandleOnline(ctx context.Context, c *hub.Client, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return s.replyError(ctx, c, domain.EventOnline, fmt.Errorf("%w: userId is required", domain.ErrValidation))
	}

	prev, err := c.Session.Identify(userID)
	if err != nil {
		return nil
	}

	superseded := s.presence.SetOnline(userID, c.ID)

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldUserID, userID).
		Str("previous_user", prev).
		Str("superseded_conn", superseded).
		Msg("user online")
	audit.Log(ctx, audit.ActionOnline, userID, "user online")
	return nil
}

func (s *chatService) HandleJoinChat(ctx context.Context, c *hub.Client, roomID string) error {
	roomID = domain.NormalizeRoomID(roomID)
	if roomID == "" {
		return s.replyError(ctx, c, domain.EventJoinChat, fmt.Errorf("%w: chatId is required", domain.ErrValidation))
	}

	added, err := c.Session.JoinRoom(roomID)
	if err != nil || !added {
		return nil
	}
	s.hub.Join(c, roomID)

	audit.LogTarget(ctx, audit.ActionJoinChat, c.Session.UserID(), roomID, "joined chat")
	return nil
}

// HandleSendMessage persists msg, invalidates the room's history and then
// multicasts the stored record. The three steps are serialized per room so
// multicast order follows persistence order.
func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, msg domain.NewMessage) error {
	if c.Session.IsClosed() {
		return nil
	}

	userID := c.Session.UserID()
	msg.RoomID = domain.NormalizeRoomID(msg.RoomID)
	if msg.RoomID == "" {
		err := fmt.Errorf("%w: chatId is required", domain.ErrValidation)
		audit.LogFailure(ctx, audit.ActionSendFailed, userID, "", err)
		return s.replyError(ctx, c, domain.EventSendMessage, err)
	}
	if msg.SenderID == "" {
		msg.SenderID = userID
	}

	unlock := s.rooms.lock(msg.RoomID)
	defer unlock()

	stored, err := s.store.Append(ctx, msg)
	if err != nil {
		audit.LogFailure(ctx, audit.ActionSendFailed, userID, msg.RoomID, err)
		return s.replyError(ctx, c, domain.EventSendMessage, err)
	}

	l := log.Ctx(ctx)
	if err := s.history.Invalidate(ctx, msg.RoomID); err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("history invalidation failed")
	}

	out := &domain.OutEnvelope{Type: domain.EventReceiveMessage, Data: stored}
	if err := s.hub.Multicast(msg.RoomID, out); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, stored.ID).Msg("failed to multicast message")
	}

	if err := s.producer.ProduceMessage(ctx, stored); err != nil {
		l.Warn().Err(err).Str(log.FieldMessageID, stored.ID).Msg("failed to publish message event")
	}

	audit.LogTarget(ctx, audit.ActionSendMessage, userID, stored.ID, "message sent")
	return nil
}

func (s *chatService) HandleGetMessages(ctx context.Context, c *hub.Client, roomID string) error {
	if c.Session.IsClosed() {
		return nil
	}

	roomID = domain.NormalizeRoomID(roomID)
	if roomID == "" {
		return s.replyError(ctx, c, domain.EventGetMessages, fmt.Errorf("%w: chatId is required", domain.ErrValidation))
	}

	messages, err := s.history.GetHistory(ctx, roomID)
	if err != nil {
		return s.replyError(ctx, c, domain.EventGetMessages, err)
	}

	s.reply(ctx, c, &domain.OutEnvelope{Type: domain.EventMessages, Data: messages})
	return nil
}

// HandleDisconnect ends the session. Presence and room entries owned by the
// connection are released exactly once; later calls are no-ops.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	if !c.Session.Disconnect() {
		return nil
	}

	userID, identified := s.presence.ClearByConnection(c.ID)
	if identified {
		s.hub.BroadcastAll(domain.NewUserStatusEvent(userID, domain.StatusOffline))
	}
	left := s.hub.LeaveAll(c)

	audit.LogTarget(ctx, audit.ActionDisconnect, userID, strings.Join(left, ","), "client disconnected")
	return nil
}

func (s *chatService) Start(ctx context.Context) error {
	l := log.Ctx(ctx)
	l.Info().Msg("chat service started")
	return nil
}

func (s *chatService) Stop() error {
	if err := s.producer.Close(); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to close kafka producer")
	}
	return nil
}

func (s *chatService) reply(ctx context.Context, c *hub.Client, msg *domain.OutEnvelope) {
	if err := c.SendMessage(msg); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldEvent, msg.Type).Msg("reply dropped")
	}
}

// replyError reports err to the requesting connection only and returns it.
func (s *chatService) replyError(ctx context.Context, c *hub.Client, event string, err error) error {
	code, text := classify(err)

	l := log.Ctx(ctx)
	l.Warn().Err(err).Str(log.FieldEvent, event).Str("code", code).Msg("event failed")

	s.reply(ctx, c, domain.NewErrorEvent(code, text, event))
	return err
}

func classify(err error) (code, message string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return domain.ErrCodeValidation, err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return domain.ErrCodeStoreUnavailable, "message store unavailable"
	default:
		return domain.ErrCodeBadRequest, err.Error()
	}
}
