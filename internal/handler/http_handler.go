package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/history"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/response"
)

type HTTPHandler struct {
	history history.HistoryService
}

func NewHTTPHandler(hist history.HistoryService) *HTTPHandler {
	return &HTTPHandler{history: hist}
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/messages/{chatId}", h.GetMessages).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
}

func (h *HTTPHandler) Root(w http.ResponseWriter, r *http.Request) {
	response.Text(w, http.StatusOK, "Hello World")
}

// GetMessages mirrors the getMessages event over HTTP.
func (h *HTTPHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := domain.NormalizeRoomID(mux.Vars(r)["chatId"])
	if roomID == "" {
		notFound(w, r)
		return
	}

	messages, err := h.history.GetHistory(r.Context(), roomID)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get messages")
		if errors.Is(err, domain.ErrStoreUnavailable) {
			response.Error(w, r, http.StatusInternalServerError, domain.ErrCodeStoreUnavailable, "message store unavailable")
			return
		}
		response.InternalError(w, r, "failed to get messages")
		return
	}

	response.JSON(w, r, http.StatusOK, messages)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	response.Error(w, r, http.StatusNotFound, "NOT_FOUND", domain.ErrNotFound.Error())
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", domain.ErrMethodNotAllowed.Error())
}
