package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/paddockhq/paddock/internal/core/domain"
)

// localTier is the in-process verdict store. Size-bounded LRU with per-entry
// TTL; the expirable implementation collects stale entries in the background
// so a steady miss rate does not leak memory.
type localTier struct {
	entries *expirable.LRU[string, *domain.ScanResult]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newLocalTier(maxEntries int, ttl time.Duration) *localTier {
	tier := &localTier{}
	tier.entries = expirable.NewLRU[string, *domain.ScanResult](maxEntries, func(string, *domain.ScanResult) {
		tier.evictions.Add(1)
	}, ttl)
	return tier
}

func (t *localTier) get(fingerprint string) (*domain.ScanResult, bool) {
	verdict, ok := t.entries.Get(fingerprint)
	if ok {
		t.hits.Add(1)
		return verdict, true
	}
	t.misses.Add(1)
	return nil, false
}

func (t *localTier) set(fingerprint string, verdict *domain.ScanResult) {
	t.entries.Add(fingerprint, verdict)
}

// cleanup removes entries that have expired but not yet been collected.
// Peek avoids refreshing recency while probing.
func (t *localTier) cleanup() int {
	removed := 0
	for _, key := range t.entries.Keys() {
		if _, ok := t.entries.Peek(key); !ok {
			if t.entries.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

func (t *localTier) purge() {
	t.entries.Purge()
}

func (t *localTier) size() int {
	return t.entries.Len()
}
