package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/kalambet/void/internal/memory"
)

const defaultSessionTTL = 30 * time.Minute

// Sessions keeps one conversation window per session id. Windows idle for
// longer than the TTL are dropped and their log files closed.
type Sessions struct {
	cache *ttlcache.Cache[string, *memory.Memory]
	opts  memory.Options
	mu    sync.Mutex
}

// NewSessions creates the session table. opts is the template for every new
// window; its SessionID is ignored.
func NewSessions(ttl time.Duration, opts memory.Options) *Sessions {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	c := ttlcache.New[string, *memory.Memory](
		ttlcache.WithTTL[string, *memory.Memory](ttl),
	)
	c.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *memory.Memory]) {
		item.Value().Close()
	})
	go c.Start()
	return &Sessions{cache: c, opts: opts}
}

// Get returns the window for id, creating it on first use. Each call resets
// the session's idle timer.
func (s *Sessions) Get(id string) *memory.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.cache.Get(id); item != nil {
		return item.Value()
	}
	m := s.newMemory(id)
	s.cache.Set(id, m, ttlcache.DefaultTTL)
	return m
}

// Ephemeral returns a window that is not kept in the table. The caller
// closes it when the request ends.
func (s *Sessions) Ephemeral() *memory.Memory {
	return s.newMemory(NewID())
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.New().String()
}

func (s *Sessions) newMemory(id string) *memory.Memory {
	opts := s.opts
	opts.SessionID = id
	return memory.New(opts)
}

// Delete drops the window for id, if any.
func (s *Sessions) Delete(id string) {
	s.cache.Delete(id)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.Len()
}

// Close drops every session and stops the expiry loop.
func (s *Sessions) Close() {
	s.cache.Stop()
	s.cache.DeleteAll()
}
