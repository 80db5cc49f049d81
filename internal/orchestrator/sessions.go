package orchestrator

import (
    "errors"
    "sync"
    "time"

    "github.com/patrickmn/go-cache"
    "github.com/rs/zerolog/log"

    "github.com/local/pagemerge/internal/metrics"
    "github.com/local/pagemerge/internal/pages"
)

var errSessionNotFound = errors.New("session not found")

// Sessions holds editing sessions in memory. A session expires after ttl
// without being looked up.
type Sessions struct {
    mu sync.Mutex
    c  *cache.Cache
}

func NewSessions(ttl, cleanupInterval time.Duration) *Sessions {
    c := cache.New(ttl, cleanupInterval)
    c.OnEvicted(func(id string, _ interface{}) {
        log.Info().Str("session_id", id).Msg("session discarded")
        metrics.SetSessions(c.ItemCount())
    })
    return &Sessions{c: c}
}

func (s *Sessions) Create() *pages.Session {
    sess := pages.NewSession()
    s.c.SetDefault(sess.ID, sess)
    metrics.SetSessions(s.c.ItemCount())
    log.Info().Str("session_id", sess.ID).Msg("session created")
    return sess
}

// Get returns the session and restarts its expiry.
func (s *Sessions) Get(id string) (*pages.Session, bool) {
    if id == "" { return nil, false }
    s.mu.Lock()
    defer s.mu.Unlock()
    v, ok := s.c.Get(id)
    if !ok { return nil, false }
    s.c.SetDefault(id, v)
    return v.(*pages.Session), true
}

// Delete discards a session. It reports whether the session existed.
func (s *Sessions) Delete(id string) bool {
    s.mu.Lock()
    _, ok := s.c.Get(id)
    s.mu.Unlock()
    if ok { s.c.Delete(id) }
    return ok
}

func (s *Sessions) Count() int { return s.c.ItemCount() }
