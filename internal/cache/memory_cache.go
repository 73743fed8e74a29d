package cache

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

type memoryEntry struct {
	messages  []domain.ChatMessage
	expiresAt time.Time
}

// MemoryMessageCache is a process-local MessageCache. Expired entries are
// treated as absent and dropped lazily on read.
type MemoryMessageCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type MemoryOption func(*MemoryMessageCache)

// WithClock replaces time.Now as the expiry clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryMessageCache) {
		c.now = now
	}
}

func NewMemoryMessageCache(opts ...MemoryOption) *MemoryMessageCache {
	c := &MemoryMessageCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryMessageCache) Get(_ context.Context, key string) ([]domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, ErrCacheMiss
	}
	return cloneMessages(e.messages), nil
}

func (c *MemoryMessageCache) Set(_ context.Context, key string, messages []domain.ChatMessage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		messages:  cloneMessages(messages),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryMessageCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryMessageCache) Close() error {
	return nil
}

func cloneMessages(in []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(in))
	copy(out, in)
	return out
}

// Len reports the number of live entries and drops expired ones.
func (c *MemoryMessageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	return len(c.entries)
}
