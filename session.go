// Package rendezvous implements cross-device sign-in: an already signed-in
// device authorizes a new one by sharing a pairing code, exchanging a
// one-time login credential over an end-to-end secured rendezvous channel,
// and confirming device identity out of band. Two protocol generations are
// supported behind one session interface; the orchestrator drives either
// through a shared phase model.
package rendezvous

import (
	"context"

	"github.com/lumichat/rendezvous/domain"
)

// Session is the capability set shared by both protocol generations. A
// session is owned exclusively by the orchestrator for the lifetime of one
// sign-in attempt and is cancelled or closed exactly once, never reused.
type Session interface {
	// GenerateCode allocates the rendezvous channel and returns the opaque
	// pairing code to display. Must succeed before anything else is called.
	GenerateCode(ctx context.Context) (string, error)
	// Cancel aborts the session, signalling reason to the peer best-effort.
	// Idempotent.
	Cancel(ctx context.Context, reason domain.FailureReason) error
	// Close releases the channel after clean completion. Idempotent.
	Close() error
}

// LegacySession is the peer-to-peer protocol: direct secret exchange with
// confirmation by digit comparison.
type LegacySession interface {
	Session

	// StartAfterShowingCode blocks until the peer connects and the shared
	// secret is derived, then returns the confirmation digits to display.
	StartAfterShowingCode(ctx context.Context) (string, error)
	// DeclineLogin rejects the connected peer. Terminal; mutually exclusive
	// with ApproveLogin.
	DeclineLogin(ctx context.Context) error
	// ApproveLogin hands the one-time login token to the peer and blocks
	// until it reports a materialized session, returning the new device ID.
	ApproveLogin(ctx context.Context, loginToken string) (string, error)
	// VerifyNewDevice blocks until the new device's cross-signing identity is
	// verified. Only called when crypto is enabled on this device.
	VerifyNewDevice(ctx context.Context) error
}

// ModernSession is the OIDC-flavored protocol: device-authorization-grant
// style with a server-mediated consent screen.
type ModernSession interface {
	Session

	// NegotiateProtocols blocks until both parties agree on a sub-protocol.
	NegotiateProtocols(ctx context.Context) (*Negotiation, error)
	// DeviceAuthorizationGrant blocks until the peer relays its grant,
	// carrying the verification URI to open out of band (possibly empty).
	DeviceAuthorizationGrant(ctx context.Context) (*Grant, error)
	// ShareSecrets blocks until the final secret material is exchanged.
	ShareSecrets(ctx context.Context) error
}

// Negotiation is the outcome of modern protocol negotiation.
type Negotiation struct {
	Protocol string
}

// Grant is the outcome of the device-authorization-grant exchange. An empty
// VerificationURI means no out-of-band consent is needed from this device.
type Grant struct {
	VerificationURI string
}

// CredentialExchanger obtains the one-time login token from the homeserver.
// A rejection may carry an HTTP status; 429 is mapped to rate_limited by the
// orchestrator's classifier.
type CredentialExchanger interface {
	RequestLoginToken(ctx context.Context) (*domain.LoginToken, error)
}

// URLOpener opens a verification URI in a new browsing context.
type URLOpener interface {
	OpenURL(ctx context.Context, uri string) error
}

// DeviceVerifier performs cross-signing verification of the new device. It
// is an external cryptographic collaborator; nil when crypto is disabled.
type DeviceVerifier interface {
	VerifyDevice(ctx context.Context, deviceID string) error
}

// SecretsProvider supplies the secret bundle the modern protocol shares with
// the verified new device (cross-signing keys and friends).
type SecretsProvider interface {
	Secrets(ctx context.Context) (map[string]string, error)
}

// SessionFactory constructs a fresh session per attempt. The concrete
// protocol generation is selected by configuration at wiring time; the
// orchestrator only ever sees the interfaces.
type SessionFactory func(ctx context.Context) (Session, error)
