package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/cache"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
	"golang.org/x/sync/singleflight"
)

type historyServiceImpl struct {
	store    Querier
	cache    cache.MessageCache
	cacheTTL time.Duration
	sf       singleflight.Group

	// gens counts invalidations per room. Cache entries are keyed by room
	// and generation, so a snapshot written under an older generation is
	// never read back. epoch keeps keys left by an earlier process out of reach.
	mu    sync.Mutex
	gens  map[string]uint64
	epoch string
}

func NewHistoryService(store Querier, msgCache cache.MessageCache, cacheTTL time.Duration) HistoryService {
	return &historyServiceImpl{
		store:    store,
		cache:    msgCache,
		cacheTTL: cacheTTL,
		gens:     make(map[string]uint64),
		epoch:    strconv.FormatInt(time.Now().UnixNano(), 36),
	}
}

func (s *historyServiceImpl) GetHistory(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	gen := s.generation(roomID)
	key := s.cacheKey(roomID, gen)

	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("cache get error")
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, roomID, key, gen)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.ChatMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	// callers of one flight share the slice
	out := make([]domain.ChatMessage, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *historyServiceImpl) fetchWithCache(ctx context.Context, roomID, key string, gen uint64) ([]domain.ChatMessage, error) {
	if cached, err := s.cache.Get(ctx, key); err == nil {
		return cached, nil
	}

	messages, err := s.store.QueryByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, messages, s.cacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("cache set error")
		return messages, nil
	}

	// superseded while fetching; the entry is unreachable, drop it early
	if s.generation(roomID) != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to drop stale cache entry")
		}
	}

	return messages, nil
}

func (s *historyServiceImpl) Invalidate(ctx context.Context, roomID string) error {
	s.mu.Lock()
	prev := s.gens[roomID]
	s.gens[roomID] = prev + 1
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, s.cacheKey(roomID, prev)); err != nil {
		return fmt.Errorf("failed to invalidate history for room %s: %w", roomID, err)
	}
	return nil
}

func (s *historyServiceImpl) generation(roomID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[roomID]
}

func (s *historyServiceImpl) cacheKey(roomID string, gen uint64) string {
	return fmt.Sprintf("%s#%s.%d", roomID, s.epoch, gen)
}
