package logintoken

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// RateLimiter throttles token issuance per user with a fixed window counter.
// Entries expire with the window, so idle users cost nothing.
type RateLimiter struct {
	cache  *ttlcache.Cache[string, *counter]
	window time.Duration
	limit  int
}

type counter struct {
	mu    sync.Mutex
	count int
}

// NewRateLimiter allows limit requests per key per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *counter](window),
		ttlcache.WithDisableTouchOnHit[string, *counter](),
	)

	go cache.Start()

	return &RateLimiter{cache: cache, window: window, limit: limit}
}

// Allow records an attempt for key and reports whether it is within budget.
func (l *RateLimiter) Allow(key string) bool {
	item, _ := l.cache.GetOrSet(key, &counter{}, ttlcache.WithTTL[string, *counter](l.window))
	c := item.Value()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count <= l.limit
}

// Close stops the cleanup goroutine.
func (l *RateLimiter) Close() error {
	l.cache.Stop()
	return nil
}
