package relay

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lumichat/rendezvous/domain"
)

// MemoryStore implements Store using ttlcache. Channels evaporate at their
// TTL without any sweeper of our own.
type MemoryStore struct {
	cache *ttlcache.Cache[string, *domain.Channel]
	mu    sync.Mutex
}

// NewMemoryStore creates a new in-memory channel store with automatic cleanup.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Channel](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.Channel](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryStore{cache: cache}
}

// Create implements Store.Create.
func (s *MemoryStore) Create(_ context.Context, ch *domain.Channel) error {
	s.cache.Set(ch.ID, ch, time.Until(ch.ExpiresAt))
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Channel, error) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, ErrNotFound
	}
	return item.Value(), nil
}

// Update implements Store.Update. The mutex makes the sequence check and the
// replacement atomic with respect to concurrent writers.
func (s *MemoryStore) Update(_ context.Context, ch *domain.Channel, expectedSequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(ch.ID)
	if item == nil {
		return ErrNotFound
	}
	if item.Value().Sequence != expectedSequence {
		return ErrConflict
	}
	s.cache.Set(ch.ID, ch, time.Until(ch.ExpiresAt))
	return nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
