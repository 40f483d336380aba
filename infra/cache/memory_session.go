package cache

import (
	"context"
	"sync"
	"time"

	"github.com/amirasaad/escrow/pkg/session"
)

type sessionEntry struct {
	state     session.State
	expiresAt time.Time
}

// MemorySessionStore implements session.Store in process memory with a TTL.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemorySessionStore creates a store whose entries expire after ttl.
// A non-positive ttl keeps entries forever.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		entries: make(map[string]sessionEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements session.Store.
func (c *MemorySessionStore) Get(ctx context.Context, userID string) (*session.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil, session.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, userID)
		return nil, session.ErrNotFound
	}
	state := entry.state
	return &state, nil
}

// Set implements session.Store.
func (c *MemorySessionStore) Set(ctx context.Context, userID string, state *session.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := sessionEntry{state: *state}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[userID] = entry
	return nil
}

// Delete implements session.Store.
func (c *MemorySessionStore) Delete(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

var _ session.Store = (*MemorySessionStore)(nil)
