// Package relay implements the rendezvous relay: the HTTP service hosting
// the single-payload mailboxes two devices use to exchange protocol frames.
package relay

import (
	"context"
	"errors"

	"github.com/lumichat/rendezvous/domain"
)

// Store errors.
var (
	ErrNotFound = errors.New("channel not found")
	ErrConflict = errors.New("channel sequence conflict")
)

// Store persists relay channels for their (short) lifetime.
type Store interface {
	// Create persists a new channel.
	Create(ctx context.Context, ch *domain.Channel) error
	// Get returns the channel or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Channel, error)
	// Update replaces the payload, guarded by the expected sequence: it
	// returns ErrConflict when the stored sequence differs.
	Update(ctx context.Context, ch *domain.Channel, expectedSequence uint64) error
	// Delete removes the channel. Removing a missing channel is not an error.
	Delete(ctx context.Context, id string) error
}
