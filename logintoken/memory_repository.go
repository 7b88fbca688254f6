package logintoken

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lumichat/rendezvous/domain"
)

// MemoryRepository implements Repository using ttlcache.
type MemoryRepository struct {
	cache *ttlcache.Cache[string, *domain.LoginTokenRecord]
	mu    sync.Mutex
}

// NewMemoryRepository creates a new in-memory token repository with
// automatic cleanup.
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.LoginTokenRecord](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.LoginTokenRecord](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryRepository{cache: cache}
}

// Save implements Repository.Save.
func (r *MemoryRepository) Save(_ context.Context, record *domain.LoginTokenRecord) error {
	r.cache.Set(record.Token, record, time.Until(record.ExpiresAt))
	return nil
}

// Consume implements Repository.Consume. The mutex makes the get-and-delete
// atomic so two racing redeemers cannot both win.
func (r *MemoryRepository) Consume(_ context.Context, token string) (*domain.LoginTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.cache.Get(token)
	if item == nil {
		return nil, ErrNotFound
	}
	r.cache.Delete(token)
	return item.Value(), nil
}

// Delete implements Repository.Delete.
func (r *MemoryRepository) Delete(_ context.Context, token string) error {
	r.cache.Delete(token)
	return nil
}

// Close stops the cleanup goroutine.
func (r *MemoryRepository) Close() error {
	r.cache.Stop()
	return nil
}
