package domain

import "encoding/json"

// Inbound realtime events.
const (
	EventOnline      = "online"
	EventJoinChat    = "joinChat"
	EventSendMessage = "sendMessage"
	EventGetMessages = "getMessages"
	EventPing        = "ping"
)

// Outbound realtime events.
const (
	EventUserStatus     = "userStatus"
	EventReceiveMessage = "receiveMessage"
	EventMessages       = "messages"
	EventError          = "error"
	EventPong           = "pong"
)

// Presence statuses carried by userStatus.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Error codes
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeUnknownEvent     = "UNKNOWN_EVENT"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutEnvelope is an outbound frame with a typed payload.
type OutEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// UserStatus is broadcast to every connection on presence changes.
type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ErrorPayload is sent to the connection whose event failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func NewUserStatusEvent(userID, status string) *OutEnvelope {
	return &OutEnvelope{
		Type: EventUserStatus,
		Data: &UserStatus{UserID: userID, Status: status},
	}
}

func NewErrorEvent(code, message, event string) *OutEnvelope {
	return &OutEnvelope{
		Type: EventError,
		Data: &ErrorPayload{Code: code, Message: message, Event: event},
	}
}

// DecodeID reads an identifier payload given either as a bare JSON string
// or as an object holding it under key.
func DecodeID(data json.RawMessage, key string) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	raw, ok := obj[key]
	if !ok {
		return "", nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
