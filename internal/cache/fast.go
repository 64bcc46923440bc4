package cache

import (
	"sync"
	"time"

	"github.com/finchlabs/finch/internal/model"
)

// fastEntry wraps a cached result with its fast-tier expiry.
type fastEntry struct {
	expiry time.Time
	result *model.CachedParseResult
}

// fastTier provides thread-safe, TTL-bounded in-memory caching.
type fastTier struct {
	entries map[string]fastEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

func newFastTier(ttl time.Duration) *fastTier {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	tier := &fastTier{
		entries: make(map[string]fastEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go tier.cleanup()

	return tier
}

func (t *fastTier) get(key string) (*model.CachedParseResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, exists := t.entries[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiry) {
		return nil, false
	}

	return entry.result, true
}

func (t *fastTier) set(key string, result *model.CachedParseResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = fastEntry{
		result: result,
		expiry: time.Now().Add(t.ttl),
	}
}

func (t *fastTier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *fastTier) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// cleanup periodically removes expired entries.
func (t *fastTier) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.mu.Lock()
			now := time.Now()
			for key, entry := range t.entries {
				if now.After(entry.expiry) {
					delete(t.entries, key)
				}
			}
			t.mu.Unlock()
		}
	}
}

func (t *fastTier) close() {
	close(t.stopCh)
}
