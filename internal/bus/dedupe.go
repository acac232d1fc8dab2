package bus

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeCache remembers recently seen correlation keys so webhook retries and
// double-taps do not trigger duplicate handling. Entries expire after the TTL
// or when the cache exceeds its size cap.
type DedupeCache struct {
	cache *expirable.LRU[string, struct{}]
}

// NewDedupeCache creates a cache holding at most size keys for up to ttl.
func NewDedupeCache(ttl time.Duration, size int) *DedupeCache {
	return &DedupeCache{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// IsDuplicate reports whether key was seen within the TTL, recording it
// either way.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if _, ok := d.cache.Get(key); ok {
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}
