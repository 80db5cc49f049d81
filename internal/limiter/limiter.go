package limiter

import (
    "strings"
    "sync"
)

// Keyed hands out at most maxInflight concurrent slots per key.
type Keyed struct {
    maxInflight int
    mu          sync.Mutex
    sem         map[string]chan struct{}
}

func New(maxInflight int) *Keyed {
    if maxInflight <= 0 { maxInflight = 1 }
    return &Keyed{maxInflight: maxInflight, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a local in-process slot for key.
// Returns a release function and true if allowed; otherwise a no-op and false.
// The release function is safe to call more than once.
func (k *Keyed) Allow(key string) (func(), bool) {
    key = strings.ToLower(key)
    k.mu.Lock()
    defer k.mu.Unlock()
    ch, ok := k.sem[key]
    if !ok {
        ch = make(chan struct{}, k.maxInflight)
        k.sem[key] = ch
    }
    select {
    case ch <- struct{}{}:
        var once sync.Once
        return func() { once.Do(func() { k.release(key, ch) }) }, true
    default:
        return func() {}, false
    }
}

func (k *Keyed) release(key string, ch chan struct{}) {
    k.mu.Lock()
    defer k.mu.Unlock()
    <-ch
    // drop idle keys so finished sessions do not accumulate
    if len(ch) == 0 && k.sem[key] == ch {
        delete(k.sem, key)
    }
}

// Inflight reports the slots currently held for key.
func (k *Keyed) Inflight(key string) int {
    k.mu.Lock()
    defer k.mu.Unlock()
    if ch, ok := k.sem[strings.ToLower(key)]; ok { return len(ch) }
    return 0
}
