package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

// Audit actions for session transitions.
const (
	ActionOnline      = "chat.online"
	ActionJoinChat    = "chat.join_chat"
	ActionSendMessage = "chat.send_message"
	ActionSendFailed  = "chat.send_failed"
	ActionDisconnect  = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogTarget emits an audit entry about a room or message.
func LogTarget(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogFailure emits an audit entry for a rejected or failed action.
func LogFailure(ctx context.Context, action, userID, targetID string, err error) {
	l := log.Ctx(ctx)
	l.Warn().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Str(FieldDetail, err.Error()).
		Msg("action failed")
}
