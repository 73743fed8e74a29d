package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/config"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/service"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

type eventHandler func(ctx context.Context, client *hub.Client, data json.RawMessage) error

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
	events   map[string]eventHandler
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig, allowedOrigins []string) *WSHandler {
	ws := &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	ws.events = map[string]eventHandler{
		domain.EventOnline:      ws.onOnline,
		domain.EventJoinChat:    ws.onJoinChat,
		domain.EventSendMessage: ws.onSendMessage,
		domain.EventGetMessages: ws.onGetMessages,
		domain.EventPing:        ws.onPing,
	}
	return ws
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(h.wsCfg.Path, h.HandleWebSocket).Methods(http.MethodGet)
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	// the request context ends with this handler; keep only its logger
	ctx := log.WithConn(log.WithLogger(context.Background(), log.Ctx(r.Context())), client.ID)
	l := log.Ctx(ctx)
	l.Info().Msg("client connected")

	h.hub.Register(client)

	go client.WritePump()
	go func() {
		client.ReadPump(func(c *hub.Client, message []byte) {
			h.handleMessage(ctx, c, message)
		})
		if err := h.service.HandleDisconnect(ctx, client); err != nil {
			l.Error().Err(err).Msg("disconnect handling failed")
		}
		l.Info().Msg("client disconnected")
	}()
}

// handleMessage routes one inbound frame. Every event name gets an answer:
// a transition, an error event, or nothing once the session is closed.
func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	if client.Session.IsClosed() {
		return
	}

	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
		h.sendError(ctx, client, domain.ErrCodeBadRequest, "invalid message format", "")
		return
	}

	handle, ok := h.events[env.Type]
	if !ok {
		h.sendError(ctx, client, domain.ErrCodeUnknownEvent, "unknown event", env.Type)
		return
	}

	if err := handle(log.WithLogger(ctx, eventLogger(ctx, env.Type)), client, env.Data); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldEvent, env.Type).Msg("event rejected")
	}
}

func (h *WSHandler) onOnline(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	userID, err := domain.DecodeID(data, "userId")
	if err != nil {
		h.sendError(ctx, client, domain.ErrCodeBadRequest, "invalid online payload", domain.EventOnline)
		return err
	}
	return h.service.HandleOnline(ctx, client, userID)
}

func (h *WSHandler) onJoinChat(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	roomID, err := domain.DecodeID(data, "chatId")
	if err != nil {
		h.sendError(ctx, client, domain.ErrCodeBadRequest, "invalid joinChat payload", domain.EventJoinChat)
		return err
	}
	return h.service.HandleJoinChat(ctx, client, roomID)
}

func (h *WSHandler) onSendMessage(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	msg, err := decodeNewMessage(data)
	if err != nil {
		h.sendError(ctx, client, domain.ErrCodeBadRequest, "invalid sendMessage payload", domain.EventSendMessage)
		return err
	}
	return h.service.HandleSendMessage(ctx, client, msg)
}

func (h *WSHandler) onGetMessages(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	roomID, err := domain.DecodeID(data, "chatId")
	if err != nil {
		h.sendError(ctx, client, domain.ErrCodeBadRequest, "invalid getMessages payload", domain.EventGetMessages)
		return err
	}
	return h.service.HandleGetMessages(ctx, client, roomID)
}

func (h *WSHandler) onPing(_ context.Context, client *hub.Client, _ json.RawMessage) error {
	return client.SendMessage(&domain.OutEnvelope{Type: domain.EventPong})
}

func (h *WSHandler) sendError(ctx context.Context, client *hub.Client, code, message, event string) {
	if err := client.SendMessage(domain.NewErrorEvent(code, message, event)); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("error reply dropped")
	}
}

func eventLogger(ctx context.Context, event string) zerolog.Logger {
	l := log.Ctx(ctx)
	return l.With().Str(log.FieldEvent, event).Logger()
}

// originChecker accepts any origin when allowed contains "*", otherwise only
// exact matches. Requests without an Origin header are not browsers and pass.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
