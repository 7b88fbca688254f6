// Package logintoken implements the homeserver side of the credential
// exchange: issuing single-use, short-lived login tokens to authenticated
// users and redeeming them exactly once on behalf of a new device.
package logintoken

import (
	"context"
	"errors"

	"github.com/lumichat/rendezvous/domain"
)

// Repository errors.
var (
	ErrNotFound = errors.New("login token not found")
)

// Repository persists issued login tokens until they are redeemed or expire.
type Repository interface {
	// Save persists a freshly issued token record.
	Save(ctx context.Context, record *domain.LoginTokenRecord) error
	// Consume atomically fetches and deletes the record for a token value,
	// returning ErrNotFound when it does not exist. A token can therefore be
	// consumed at most once.
	Consume(ctx context.Context, token string) (*domain.LoginTokenRecord, error)
	// Delete drops a record, for revocation.
	Delete(ctx context.Context, token string) error
}
