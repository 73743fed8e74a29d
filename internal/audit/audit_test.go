package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

func capture(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := log.NewWithWriter(log.Config{Level: "debug", ServiceName: "test"}, &buf)
	return log.WithLogger(context.Background(), logger), &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogTarget(t *testing.T) {
	ctx, buf := capture(t)

	LogTarget(ctx, ActionJoinChat, "alice", "room-1", "joined chat")

	entry := decode(t, buf)
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionJoinChat, entry[FieldAction])
	assert.Equal(t, "alice", entry[log.FieldUserID])
	assert.Equal(t, "room-1", entry[FieldTargetID])
	assert.Equal(t, "info", entry["level"])
}

func TestLogFailure(t *testing.T) {
	ctx, buf := capture(t)

	LogFailure(ctx, ActionSendFailed, "alice", "room-1", errors.New("store down"))

	entry := decode(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "store down", entry[FieldDetail])
}
