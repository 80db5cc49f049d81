package store

import (
    "context"
    "time"

    "github.com/patrickmn/go-cache"
)

// MemoryStatus keeps job status in process, for single-instance deployments
// and tests.
type MemoryStatus struct {
    jobs     *cache.Cache
    sessions *cache.Cache
}

func NewMemoryStatus(ttl time.Duration) *MemoryStatus {
    if ttl <= 0 { ttl = 24 * time.Hour }
    cleanup := ttl / 4
    if cleanup < time.Minute { cleanup = time.Minute }
    return &MemoryStatus{jobs: cache.New(ttl, cleanup), sessions: cache.New(ttl, cleanup)}
}

func (m *MemoryStatus) Set(_ context.Context, jobID string, st Status) error {
    if st.Metadata != nil {
        md := make(map[string]interface{}, len(st.Metadata))
        for k, v := range st.Metadata { md[k] = v }
        st.Metadata = md
    }
    m.jobs.Set(jobID, st, cache.DefaultExpiration)
    return nil
}

func (m *MemoryStatus) Get(_ context.Context, jobID string) (Status, bool, error) {
    v, ok := m.jobs.Get(jobID)
    if !ok { return Status{}, false, nil }
    return v.(Status), true, nil
}

func (m *MemoryStatus) SetSessionJob(_ context.Context, sessionID, jobID string) error {
    m.sessions.Set(sessionID, jobID, cache.DefaultExpiration)
    return nil
}

func (m *MemoryStatus) SessionJob(_ context.Context, sessionID string) (string, error) {
    if v, ok := m.sessions.Get(sessionID); ok { return v.(string), nil }
    return "", nil
}

func (m *MemoryStatus) Close() error {
    m.jobs.Flush()
    m.sessions.Flush()
    return nil
}
