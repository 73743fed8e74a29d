package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/idgen"
)

type failingRepo struct {
	err error
}

func (f *failingRepo) Insert(context.Context, *domain.ChatMessage) error { return f.err }
func (f *failingRepo) ListByRoom(context.Context, string) ([]domain.ChatMessage, error) {
	return nil, f.err
}
func (f *failingRepo) Close() error { return nil }

func TestGateway_AppendAssignsIDAndTimestamp(t *testing.T) {
	g := NewGateway(NewMemoryMessageRepository(), idgen.NewULIDGenerator())
	ctx := context.Background()

	stored, err := g.Append(ctx, domain.NewMessage{
		RoomID:   "room-1",
		SenderID: "alice",
		Body:     json.RawMessage(`"hi"`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, "room-1", stored.RoomID)
	assert.JSONEq(t, `"hi"`, string(stored.Body))

	msgs, err := g.QueryByRoom(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, *stored, msgs[0])
}

func TestGateway_AppendRejectsMissingRoom(t *testing.T) {
	repo := &failingRepo{err: errors.New("must not be called")}
	g := NewGateway(repo, idgen.NewULIDGenerator())

	_, err := g.Append(context.Background(), domain.NewMessage{SenderID: "alice"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestGateway_BackendFailureIsStoreUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	g := NewGateway(&failingRepo{err: cause}, idgen.NewULIDGenerator())
	ctx := context.Background()

	_, err := g.Append(ctx, domain.NewMessage{RoomID: "room-1"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)

	_, err = g.QueryByRoom(ctx, "room-1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestGateway_UnknownRoomIsEmptyNotNil(t *testing.T) {
	g := NewGateway(NewMemoryMessageRepository(), idgen.NewULIDGenerator())

	msgs, err := g.QueryByRoom(context.Background(), "nobody-here")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestGateway_TimestampsNeverGoBackwards(t *testing.T) {
	g := NewGateway(NewMemoryMessageRepository(), idgen.NewULIDGenerator())
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	i := 0
	g.now = func() time.Time { t := clock[i]; i++; return t }

	ctx := context.Background()
	var got []*domain.ChatMessage
	for range clock {
		m, err := g.Append(ctx, domain.NewMessage{RoomID: "r"})
		require.NoError(t, err)
		got = append(got, m)
	}
	assert.Equal(t, base, got[1].Timestamp)
	assert.True(t, got[0].Before(*got[1]))
	assert.True(t, got[1].Before(*got[2]))
}

func TestGateway_BackwardsClockKeepsIDsInOrder(t *testing.T) {
	snow, err := idgen.NewSnowflakeGenerator(1, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		ids  idgen.Generator
	}{
		{"ulid", idgen.NewULIDGenerator()},
		{"snowflake", snow},
	}

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(NewMemoryMessageRepository(), tt.ids)
			clock := []time.Time{base, base.Add(-time.Minute), base}
			i := 0
			g.now = func() time.Time { t := clock[i]; i++; return t }

			ctx := context.Background()
			var got []*domain.ChatMessage
			for range clock {
				m, err := g.Append(ctx, domain.NewMessage{RoomID: "r"})
				require.NoError(t, err)
				got = append(got, m)
			}

			for i := 1; i < len(got); i++ {
				assert.Equal(t, base, got[i].Timestamp)
				assert.Less(t, got[i-1].ID, got[i].ID)
			}
		})
	}
}

func TestGateway_ConcurrentAppendsStayOrdered(t *testing.T) {
	g := NewGateway(NewMemoryMessageRepository(), idgen.NewULIDGenerator())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Append(ctx, domain.NewMessage{RoomID: "room-1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := g.QueryByRoom(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	seen := make(map[string]bool)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].Before(msgs[i]))
		assert.False(t, seen[msgs[i].ID])
		seen[msgs[i].ID] = true
	}
}
