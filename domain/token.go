package domain

import "time"

// LoginToken is the short-lived, single-use credential the existing device
// obtains from the homeserver and hands to the new device over the secure
// channel.
type LoginToken struct {
	Value     string `json:"login_token"`
	ExpiresIn int64  `json:"expires_in_ms"`
}

// LoginTokenRecordStatus represents the lifecycle state of an issued token on
// the homeserver side.
type LoginTokenRecordStatus string

const (
	LoginTokenStatusPending  LoginTokenRecordStatus = "pending"
	LoginTokenStatusRedeemed LoginTokenRecordStatus = "redeemed"
)

// LoginTokenRecord is the homeserver-side record of an issued login token.
// Redeeming a token consumes the record; a token can never be redeemed twice.
type LoginTokenRecord struct {
	ID        string                 `bson:"_id" json:"id"`
	Token     string                 `bson:"token" json:"token"`
	UserID    string                 `bson:"user_id" json:"user_id"`
	Status    LoginTokenRecordStatus `bson:"status" json:"status"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time              `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the record is past its expiry at the given instant.
func (r *LoginTokenRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
