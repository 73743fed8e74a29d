package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/idgen"
)

// Gateway assigns id and timestamp to new messages and maps backend
// failures to domain.ErrStoreUnavailable. It never retries.
type Gateway struct {
	repo MessageRepository
	ids  idgen.Generator
	now  func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewGateway(repo MessageRepository, ids idgen.Generator) *Gateway {
	return &Gateway{
		repo: repo,
		ids:  ids,
		now:  time.Now,
	}
}

// Append persists msg and returns the stored record.
func (g *Gateway) Append(ctx context.Context, msg domain.NewMessage) (*domain.ChatMessage, error) {
	if msg.RoomID == "" {
		return nil, fmt.Errorf("%w: chatId is required", domain.ErrValidation)
	}

	id, ts, err := g.stamp()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	stored := &domain.ChatMessage{
		ID:        id,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		Timestamp: ts,
	}
	if err := g.repo.Insert(ctx, stored); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return stored, nil
}

// stamp hands out id and timestamp together so that id order never
// contradicts timestamp order. Timestamps are millisecond precision, the
// finest every backend keeps, and never go backwards. The id embeds the same
// clamped timestamp.
func (g *Gateway) stamp() (string, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UTC().Truncate(time.Millisecond)
	if ts.Before(g.last) {
		ts = g.last
	}
	id, err := g.ids.GenerateAt(ts)
	if err != nil {
		return "", time.Time{}, err
	}
	g.last = ts
	return id, ts, nil
}

// QueryByRoom returns the room's messages ordered by timestamp, then id.
// An unknown room yields an empty, non-nil slice.
func (g *Gateway) QueryByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	msgs, err := g.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
	return msgs, nil
}
