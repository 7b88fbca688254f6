// Package transport provides the rendezvous channel: a bidirectional,
// relay-mediated mailbox two devices join using a shared URI. Payloads are
// opaque to the transport; the secure layer above it handles encryption.
package transport

import "context"

// Channel is a single-payload mailbox on a relay. One party creates it and
// embeds the URI in the pairing code; the other joins by fetching the URI.
// Send replaces the current payload, Receive blocks until the payload changes
// to something this side has not written or seen.
type Channel interface {
	// Create allocates the channel on the relay and returns its URI.
	Create(ctx context.Context) (string, error)
	// URI returns the channel location once created.
	URI() string
	// Send publishes a payload, replacing whatever is there.
	Send(ctx context.Context, payload []byte) error
	// Receive blocks until the peer publishes a new payload, the channel
	// expires, or ctx is cancelled.
	Receive(ctx context.Context) ([]byte, error)
	// Close tears the channel down on the relay. Idempotent.
	Close() error
}
