package handler

import (
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

// decodeNewMessage reads a sendMessage payload. chatId and senderId are
// lifted out; an explicit body is kept as is, otherwise the remaining fields
// become the body so clients can send flat records like {chatId, text}.
func decodeNewMessage(data json.RawMessage) (domain.NewMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return domain.NewMessage{}, fmt.Errorf("sendMessage payload must be an object: %w", err)
	}

	var msg domain.NewMessage
	if raw, ok := fields["chatId"]; ok {
		if err := json.Unmarshal(raw, &msg.RoomID); err != nil {
			return domain.NewMessage{}, fmt.Errorf("chatId must be a string: %w", err)
		}
		delete(fields, "chatId")
	}
	if raw, ok := fields["senderId"]; ok {
		if err := json.Unmarshal(raw, &msg.SenderID); err != nil {
			return domain.NewMessage{}, fmt.Errorf("senderId must be a string: %w", err)
		}
		delete(fields, "senderId")
	}

	if body, ok := fields["body"]; ok {
		msg.Body = body
		return msg, nil
	}
	if len(fields) > 0 {
		body, err := json.Marshal(fields)
		if err != nil {
			return domain.NewMessage{}, err
		}
		msg.Body = body
	}
	return msg, nil
}
