package redis

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/relay"
)

// Store implements the relay Store interface using Redis
type Store struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewStore creates a new [Store] instance
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a given channel
func (r *Store) redisKey(id string) string {
	return fmt.Sprintf("%s:channel:%s", r.prefix, id)
}

// Create stores a channel with its payload and expiry time in Redis
func (r *Store) Create(ctx context.Context, ch *domain.Channel) error {
	key := r.redisKey(ch.ID)

	entry := map[string]interface{}{
		"payload":      base64.StdEncoding.EncodeToString(ch.Payload),
		"content_type": ch.ContentType,
		"sequence":     ch.Sequence,
		"created_at":   ch.CreatedAt.Unix(),
		"expires_at":   ch.ExpiresAt.Unix(),
	}

	if _, err := r.client.HSet(ctx, key, entry).Result(); err != nil {
		return fmt.Errorf("failed to set channel in Redis: %w", err)
	}

	if _, err := r.client.Expire(ctx, key, time.Until(ch.ExpiresAt)).Result(); err != nil {
		return fmt.Errorf("failed to set expiry for channel in Redis: %w", err)
	}

	return nil
}

// Get retrieves a channel from Redis
func (r *Store) Get(ctx context.Context, id string) (*domain.Channel, error) {
	res, err := r.client.HGetAll(ctx, r.redisKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel from Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, relay.ErrNotFound
	}
	return decode(id, res)
}

// Update replaces the payload, guarded by the expected sequence. The check
// and write run inside a transactional watch so concurrent writers conflict
// instead of clobbering each other.
func (r *Store) Update(ctx context.Context, ch *domain.Channel, expectedSequence uint64) error {
	key := r.redisKey(ch.ID)

	txf := func(tx *redis.Tx) error {
		res, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to get channel from Redis: %w", err)
		}
		if len(res) == 0 {
			return relay.ErrNotFound
		}
		current, err := strconv.ParseUint(res["sequence"], 10, 64)
		if err != nil {
			return fmt.Errorf("stored sequence is unparseable: %w", err)
		}
		if current != expectedSequence {
			return relay.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				"payload":      base64.StdEncoding.EncodeToString(ch.Payload),
				"content_type": ch.ContentType,
				"sequence":     ch.Sequence,
			})
			pipe.Expire(ctx, key, time.Until(ch.ExpiresAt))
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	if err == redis.TxFailedErr {
		return relay.ErrConflict
	}
	return err
}

// Delete removes a channel from Redis
func (r *Store) Delete(ctx context.Context, id string) error {
	if _, err := r.client.Del(ctx, r.redisKey(id)).Result(); err != nil {
		return fmt.Errorf("failed to delete channel from Redis: %w", err)
	}
	return nil
}

func decode(id string, res map[string]string) (*domain.Channel, error) {
	payload, err := base64.StdEncoding.DecodeString(res["payload"])
	if err != nil {
		return nil, fmt.Errorf("stored payload is unparseable: %w", err)
	}
	sequence, err := strconv.ParseUint(res["sequence"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stored sequence is unparseable: %w", err)
	}
	createdAt, err := strconv.ParseInt(res["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stored created_at is unparseable: %w", err)
	}
	expiresAt, err := strconv.ParseInt(res["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stored expires_at is unparseable: %w", err)
	}

	return &domain.Channel{
		ID:          id,
		Payload:     payload,
		ContentType: res["content_type"],
		Sequence:    sequence,
		CreatedAt:   time.Unix(createdAt, 0),
		ExpiresAt:   time.Unix(expiresAt, 0),
	}, nil
}
