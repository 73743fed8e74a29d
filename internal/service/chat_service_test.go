package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/cache"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/config"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/history"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/presence"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/repository"
)

type fixture struct {
	hub      *hub.Hub
	presence *presence.Registry
	history  history.HistoryService
	cache    *cache.MemoryMessageCache
	producer *recordingProducer
	svc      ChatService
}

type recordingProducer struct {
	mu   sync.Mutex
	msgs []*domain.ChatMessage
}

func (p *recordingProducer) ProduceMessage(_ context.Context, msg *domain.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type brokenRepo struct{}

func (brokenRepo) Insert(context.Context, *domain.ChatMessage) error {
	return errors.New("connection refused")
}

func (brokenRepo) ListByRoom(context.Context, string) ([]domain.ChatMessage, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepo) Close() error { return nil }

func newFixture(t *testing.T, repo repository.MessageRepository) *fixture {
	t.Helper()
	h := hub.NewHub(config.WebSocketConfig{})
	go h.Run()
	t.Cleanup(h.Stop)

	gw := repository.NewGateway(repo, idgen.NewULIDGenerator())
	msgCache := cache.NewMemoryMessageCache()
	hist := history.NewHistoryService(gw, msgCache, 100*time.Second)
	reg := presence.NewRegistry(h)
	producer := &recordingProducer{}

	return &fixture{
		hub:      h,
		presence: reg,
		history:  hist,
		cache:    msgCache,
		producer: producer,
		svc:      NewChatService(h, reg, gw, hist, producer),
	}
}

func (f *fixture) connect(id string) *hub.Client {
	c := hub.NewClient(id, f.hub, nil, config.WebSocketConfig{})
	f.hub.Register(c)
	return c
}

func next(t *testing.T, c *hub.Client) domain.Envelope {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send queue closed")
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no frame received", c.ID)
	}
	return domain.Envelope{}
}

// expect skips frames of other types until one of eventType arrives.
func expect(t *testing.T, c *hub.Client, eventType string) domain.Envelope {
	t.Helper()
	for {
		env := next(t, c)
		if env.Type == eventType {
			return env
		}
	}
}

// assertQuiet checks that c receives nothing but a marker broadcast
// submitted after everything else.
func assertQuiet(t *testing.T, f *fixture, c *hub.Client) {
	t.Helper()
	f.hub.BroadcastAll(&domain.OutEnvelope{Type: "marker"})
	assert.Equal(t, "marker", next(t, c).Type)
}

func decodeMessage(t *testing.T, env domain.Envelope) domain.ChatMessage {
	t.Helper()
	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

func TestScenario_SendReachesRoomAndHistory(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	a := f.connect("conn-a")
	b := f.connect("conn-b")

	require.NoError(t, f.svc.HandleOnline(ctx, a, "A"))
	require.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-1"))
	require.NoError(t, f.svc.HandleJoinChat(ctx, b, "room-1"))

	online := expect(t, b, domain.EventUserStatus)
	assert.JSONEq(t, `{"userId":"A","status":"online"}`, string(online.Data))

	// warm the cache with the empty room first
	before, err := f.history.GetHistory(ctx, "room-1")
	require.NoError(t, err)
	require.Empty(t, before)

	require.NoError(t, f.svc.HandleSendMessage(ctx, a, domain.NewMessage{
		RoomID: "room-1",
		Body:   json.RawMessage(`"hi"`),
	}))

	gotA := decodeMessage(t, expect(t, a, domain.EventReceiveMessage))
	gotB := decodeMessage(t, expect(t, b, domain.EventReceiveMessage))
	assert.NotEmpty(t, gotA.ID)
	assert.False(t, gotA.Timestamp.IsZero())
	assert.Equal(t, gotA, gotB)
	assert.Equal(t, "A", gotA.SenderID)
	assert.JSONEq(t, `"hi"`, string(gotA.Body))

	after, err := f.history.GetHistory(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, gotA.ID, after[0].ID)
	assert.Equal(t, 1, f.producer.count())
}

func TestGetMessages_RepliesOnlyToRequester(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	a := f.connect("conn-a")
	b := f.connect("conn-b")
	require.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-1"))
	require.NoError(t, f.svc.HandleJoinChat(ctx, b, "room-1"))

	require.NoError(t, f.svc.HandleSendMessage(ctx, a, domain.NewMessage{RoomID: "room-1", SenderID: "A"}))
	expect(t, a, domain.EventReceiveMessage)
	expect(t, b, domain.EventReceiveMessage)

	require.NoError(t, f.svc.HandleGetMessages(ctx, a, "room-1"))
	env := next(t, a)
	require.Equal(t, domain.EventMessages, env.Type)
	var msgs []domain.ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	assert.Len(t, msgs, 1)

	assertQuiet(t, f, b)
}

func TestGetMessages_UnknownRoomIsEmptyArray(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	a := f.connect("conn-a")

	require.NoError(t, f.svc.HandleGetMessages(context.Background(), a, "nowhere"))
	env := next(t, a)
	assert.Equal(t, domain.EventMessages, env.Type)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestSendMessage_MissingRoomIsRejected(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	a := f.connect("conn-a")
	b := f.connect("conn-b")
	require.NoError(t, f.svc.HandleJoinChat(ctx, b, "room-1"))

	err := f.svc.HandleSendMessage(ctx, a, domain.NewMessage{Body: json.RawMessage(`"hi"`)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	env := next(t, a)
	require.Equal(t, domain.EventError, env.Type)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, domain.ErrCodeValidation, payload.Code)
	assert.Equal(t, domain.EventSendMessage, payload.Event)

	assertQuiet(t, f, b)
	assert.Zero(t, f.producer.count())
}

func TestSendMessage_StoreFailureIsNotBroadcast(t *testing.T) {
	f := newFixture(t, brokenRepo{})
	ctx := context.Background()
	a := f.connect("conn-a")
	b := f.connect("conn-b")
	require.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-1"))
	require.NoError(t, f.svc.HandleJoinChat(ctx, b, "room-1"))

	err := f.svc.HandleSendMessage(ctx, a, domain.NewMessage{RoomID: "room-1"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	env := next(t, a)
	require.Equal(t, domain.EventError, env.Type)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, domain.ErrCodeStoreUnavailable, payload.Code)

	assertQuiet(t, f, b)
	assert.Zero(t, f.cache.Len())
}

func TestGetMessages_StoreFailure(t *testing.T) {
	f := newFixture(t, brokenRepo{})
	a := f.connect("conn-a")

	err := f.svc.HandleGetMessages(context.Background(), a, "room-1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, domain.EventError, next(t, a).Type)
}

func TestSendMessage_ConcurrentSendersKeepStoreOrder(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	reader := f.connect("reader")
	require.NoError(t, f.svc.HandleJoinChat(ctx, reader, "room-1"))

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		sender := f.connect(fmt.Sprintf("sender-%d", i))
		wg.Add(1)
		go func(c *hub.Client, i int) {
			defer wg.Done()
			err := f.svc.HandleSendMessage(ctx, c, domain.NewMessage{RoomID: "room-1", SenderID: fmt.Sprint(i)})
			assert.NoError(t, err)
		}(sender, i)
	}
	wg.Wait()

	received := make([]string, 0, n)
	for i := 0; i < n; i++ {
		received = append(received, decodeMessage(t, expect(t, reader, domain.EventReceiveMessage)).ID)
	}

	stored, err := f.history.GetHistory(ctx, "room-1")
	require.NoError(t, err)
	storedIDs := make([]string, 0, len(stored))
	for _, m := range stored {
		storedIDs = append(storedIDs, m.ID)
	}
	assert.Equal(t, storedIDs, received)
}

func TestDisconnect_CleansUpOnce(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	a := f.connect("conn-a")
	b := f.connect("conn-b")

	require.NoError(t, f.svc.HandleOnline(ctx, a, "A"))
	require.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-1"))
	require.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-2"))
	expect(t, b, domain.EventUserStatus)

	require.NoError(t, f.svc.HandleDisconnect(ctx, a))
	require.NoError(t, f.svc.HandleDisconnect(ctx, a))

	offline := next(t, b)
	assert.Equal(t, domain.EventUserStatus, offline.Type)
	assert.JSONEq(t, `{"userId":"A","status":"offline"}`, string(offline.Data))
	assertQuiet(t, f, b)

	assert.Empty(t, f.hub.RoomsOf(a.ID))
	assert.Empty(t, f.hub.Members("room-1"))
	assert.False(t, f.presence.IsOnline("A"))
	assert.Equal(t, domain.StateDisconnected, a.Session.State())
}

func TestDisconnect_UnidentifiedSendsNoOffline(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	a := f.connect("conn-a")
	b := f.connect("conn-b")
	require.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-1"))

	require.NoError(t, f.svc.HandleDisconnect(ctx, a))
	assertQuiet(t, f, b)
	assert.Empty(t, f.hub.Members("room-1"))
}

func TestDisconnect_SupersededConnectionSendsNoOffline(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	first := f.connect("conn-1")
	second := f.connect("conn-2")
	watcher := f.connect("watcher")

	require.NoError(t, f.svc.HandleOnline(ctx, first, "A"))
	require.NoError(t, f.svc.HandleOnline(ctx, second, "A"))
	expect(t, watcher, domain.EventUserStatus)
	expect(t, watcher, domain.EventUserStatus)

	conn, ok := f.presence.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "conn-2", conn)

	require.NoError(t, f.svc.HandleDisconnect(ctx, first))
	assertQuiet(t, f, watcher)
	assert.True(t, f.presence.IsOnline("A"))
}

func TestEventsAfterDisconnectAreIgnored(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	a := f.connect("conn-a")
	watcher := f.connect("watcher")

	require.NoError(t, f.svc.HandleDisconnect(ctx, a))

	assert.NoError(t, f.svc.HandleOnline(ctx, a, "A"))
	assert.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-1"))
	assert.NoError(t, f.svc.HandleSendMessage(ctx, a, domain.NewMessage{RoomID: "room-1"}))

	assert.False(t, f.presence.IsOnline("A"))
	assert.Empty(t, f.hub.Members("room-1"))
	assert.Zero(t, f.producer.count())
	assertQuiet(t, f, watcher)
}

func TestOnline_RequiresUserID(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	a := f.connect("conn-a")

	err := f.svc.HandleOnline(context.Background(), a, "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.EventError, next(t, a).Type)
	assert.Equal(t, domain.StateConnected, a.Session.State())
}

func TestRoomLocks_ReleaseEntries(t *testing.T) {
	locks := newRoomLocks()

	unlock := locks.lock("room-1")
	assert.Equal(t, 1, locks.size())
	unlock()
	assert.Zero(t, locks.size())

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer locks.lock("room-1")()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)
	assert.Zero(t, locks.size())
}

func TestJoinChat_RepeatedJoinKeepsOneMembership(t *testing.T) {
	f := newFixture(t, repository.NewMemoryMessageRepository())
	ctx := context.Background()
	a := f.connect("conn-a")

	require.NoError(t, f.svc.HandleJoinChat(ctx, a, "room-1"))
	require.NoError(t, f.svc.HandleJoinChat(ctx, a, " room-1 "))

	assert.Equal(t, []string{"conn-a"}, f.hub.Members("room-1"))
	assert.Equal(t, []string{"room-1"}, a.Session.Rooms())

	require.NoError(t, f.svc.HandleSendMessage(ctx, a, domain.NewMessage{RoomID: "room-1", SenderID: "A"}))
	expect(t, a, domain.EventReceiveMessage)
	assertQuiet(t, f, a)
}
