package domain

import "time"

// Channel is a rendezvous point on the relay: a single-payload mailbox the
// two devices alternate reading and writing. Sequence acts as the ETag for
// optimistic concurrency control on updates and long-poll reads.
type Channel struct {
	ID          string    `bson:"_id" json:"id"`
	Payload     []byte    `bson:"payload" json:"payload"`
	ContentType string    `bson:"content_type" json:"content_type"`
	Sequence    uint64    `bson:"sequence" json:"sequence"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the channel is past its expiry at the given instant.
func (c *Channel) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
