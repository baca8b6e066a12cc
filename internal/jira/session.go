package jira

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionCache memoizes metadata lookups (field IDs, filters) for the
// lifetime of one session. Entries expire after their TTL; a hit extends the
// window up to maxExtensions times.
type SessionCache struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

type sessionEntry struct {
	value       any
	expiration  time.Time
	accessCount int
	originalTTL time.Duration
}

const maxExtensions = 6

// NewSessionCache creates an empty session cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// Get returns the cached value for key, if present and not expired.
func (s *SessionCache) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		log.Debug().Str("key", key).Msg("Session cache miss")
		return nil, false
	}

	now := s.now()
	if now.After(entry.expiration) {
		delete(s.entries, key)
		return nil, false
	}

	// Sliding window extension
	if entry.accessCount < maxExtensions {
		entry.expiration = now.Add(entry.originalTTL)
		entry.accessCount++
		log.Trace().Str("key", key).Int("count", entry.accessCount).Msg("Extended session entry")
	}
	return entry.value, true
}

// Set stores value under key for ttl. Expired entries are swept on every
// write so keys that are never read again do not accumulate.
func (s *SessionCache) Set(key string, value any, ttl time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiration) {
			delete(s.entries, k)
		}
	}

	s.entries[key] = &sessionEntry{
		value:       value,
		expiration:  now.Add(ttl),
		originalTTL: ttl,
		accessCount: 1,
	}
}

// Len returns the number of live and expired-but-unswept entries.
func (s *SessionCache) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *SessionCache) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session cache carried by ctx, or nil. A nil cache
// is valid and simply never hits.
func SessionFrom(ctx context.Context) *SessionCache {
	s, _ := ctx.Value(sessionKey{}).(*SessionCache)
	return s
}
