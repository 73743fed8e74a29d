package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ChatMessage is a stored chat record. ID and Timestamp are assigned when
// the message is appended and never change afterwards.
type ChatMessage struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"chatId"`
	SenderID  string          `json:"senderId"`
	Body      json.RawMessage `json:"body,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Before reports whether m sorts before o inside a room: by timestamp,
// then by id.
func (m ChatMessage) Before(o ChatMessage) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return m.ID < o.ID
}

// NormalizeRoomID is applied to every room id a client supplies, over
// either transport.
func NormalizeRoomID(roomID string) string {
	return strings.TrimSpace(roomID)
}

// NewMessage is what a client submits through sendMessage.
type NewMessage struct {
	RoomID   string          `json:"chatId"`
	SenderID string          `json:"senderId"`
	Body     json.RawMessage `json:"body,omitempty"`
}
