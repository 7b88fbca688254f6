package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/errors"
	"github.com/lumichat/rendezvous/log"
	"github.com/lumichat/rendezvous/securechannel"
	"github.com/lumichat/rendezvous/transport"
)

// LegacyOptions configure a legacy peer-to-peer session.
type LegacyOptions struct {
	HomeserverURL string
	// SupportsLoginToken is the probed homeserver capability. When false,
	// code generation fails with homeserver_lacks_support before anything is
	// shown to the user.
	SupportsLoginToken bool
	// Verifier performs cross-signing verification. May be nil when crypto
	// is disabled on this device.
	Verifier DeviceVerifier
	Logger   log.Logger
}

// legacySession wraps the peer-to-peer rendezvous protocol: the existing
// device publishes a code carrying the channel URI and its ephemeral key,
// the new device connects, both derive a shared secret and compare digits,
// and the login token crosses the encrypted channel.
type legacySession struct {
	ch   transport.Channel
	opts LegacyOptions

	kp  *securechannel.KeyPair
	sec *securechannel.Secured

	newDeviceID string

	mu        sync.Mutex
	torn      bool
	cancelled bool
}

// NewLegacySession builds a legacy session over the given channel.
//
//nolint:ireturn
func NewLegacySession(ch transport.Channel, opts LegacyOptions) LegacySession {
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	return &legacySession{ch: ch, opts: opts}
}

// GenerateCode implements Session.GenerateCode.
func (s *legacySession) GenerateCode(ctx context.Context) (string, error) {
	if !s.opts.SupportsLoginToken {
		return "", errors.NewHomeserverLacksSupport("homeserver does not issue login tokens")
	}

	uri, err := s.ch.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create rendezvous channel: %w", err)
	}

	kp, err := securechannel.NewKeyPair()
	if err != nil {
		return "", err
	}
	s.kp = kp

	code, err := json.Marshal(domain.LegacyCode{
		Rendezvous: domain.RendezvousDescriptor{
			Transport: domain.CodeTransport{Type: domain.TransportHTTPV1, URI: uri},
			Algorithm: domain.SecureChannelAlgorithm,
			Key:       kp.PublicKey(),
		},
		Intent:     domain.IntentReciprocate,
		Homeserver: s.opts.HomeserverURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode pairing code: %w", err)
	}
	return string(code), nil
}

// StartAfterShowingCode implements LegacySession.StartAfterShowingCode. It
// blocks until the peer publishes its hello, derives the shared secret,
// completes the initiate exchange, and returns the confirmation digits.
func (s *legacySession) StartAfterShowingCode(ctx context.Context) (string, error) {
	raw, err := s.ch.Receive(ctx)
	if err != nil {
		return "", err
	}

	var hello domain.Hello
	if err := json.Unmarshal(raw, &hello); err != nil {
		return "", errors.NewInvalidCode("peer hello is unparseable")
	}
	if hello.Algorithm != domain.SecureChannelAlgorithm {
		return "", errors.NewUnsupportedAlgorithm(hello.Algorithm)
	}

	cipher, err := s.kp.Derive(hello.Key)
	if err != nil {
		return "", errors.NewInvalidCode(err.Error())
	}
	// Cancel may run concurrently with this operation and reads s.sec under
	// the mutex; publish it the same way.
	sec := securechannel.NewSecured(s.ch, cipher)
	s.mu.Lock()
	s.sec = sec
	s.mu.Unlock()

	var msg domain.Message
	if err := sec.ReceiveMessage(ctx, &msg); err != nil {
		return "", err
	}
	if msg.Type == domain.MessageLoginFailure {
		return "", errors.NewSignInError(peerReason(msg.Reason), "peer reported failure")
	}
	if msg.Type != domain.MessageLoginInitiate {
		return "", errors.NewUnexpectedMessage(msg.Type, domain.MessageLoginInitiate)
	}

	err = sec.SendMessage(ctx, domain.Message{
		Type:       domain.MessageLoginProtocols,
		Protocols:  []string{domain.ProtocolLoginToken},
		Homeserver: s.opts.HomeserverURL,
	})
	if err != nil {
		return "", err
	}

	return sec.ConfirmationDigits(), nil
}

// secure returns the derived channel wrapper under the mutex.
func (s *legacySession) secure() *securechannel.Secured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sec
}

// DeclineLogin implements LegacySession.DeclineLogin.
func (s *legacySession) DeclineLogin(ctx context.Context) error {
	return s.secure().SendMessage(ctx, domain.Message{Type: domain.MessageLoginDeclined})
}

// ApproveLogin implements LegacySession.ApproveLogin. It hands the token to
// the peer and blocks until the peer reports the materialized session.
func (s *legacySession) ApproveLogin(ctx context.Context, loginToken string) (string, error) {
	sec := s.secure()
	err := sec.SendMessage(ctx, domain.Message{
		Type:       domain.MessageLoginApproved,
		LoginToken: loginToken,
		Homeserver: s.opts.HomeserverURL,
	})
	if err != nil {
		return "", err
	}

	var msg domain.Message
	if err := sec.ReceiveMessage(ctx, &msg); err != nil {
		return "", err
	}
	switch msg.Type {
	case domain.MessageLoginSuccess:
		if msg.DeviceID == "" {
			return "", errors.NewUnknown("peer reported success without a device id")
		}
		s.newDeviceID = msg.DeviceID
		return msg.DeviceID, nil
	case domain.MessageLoginFailure:
		return "", errors.NewSignInError(peerReason(msg.Reason), "peer failed to redeem token")
	default:
		return "", errors.NewUnexpectedMessage(msg.Type, domain.MessageLoginSuccess)
	}
}

// VerifyNewDevice implements LegacySession.VerifyNewDevice. The injected
// verifier attests the cross-signing identity; the peer is then told it is
// trusted.
func (s *legacySession) VerifyNewDevice(ctx context.Context) error {
	if s.opts.Verifier == nil {
		return errors.NewUnknown("no device verifier configured")
	}
	if s.newDeviceID == "" {
		return errors.NewUnknown("no device to verify before approval")
	}
	if err := s.opts.Verifier.VerifyDevice(ctx, s.newDeviceID); err != nil {
		if _, ok := errors.ReasonOf(err); ok {
			return err
		}
		return errors.NewDataMismatch(err.Error())
	}
	return s.secure().SendMessage(ctx, domain.Message{
		Type:     domain.MessageLoginVerified,
		DeviceID: s.newDeviceID,
	})
}

// Cancel implements Session.Cancel.
func (s *legacySession) Cancel(ctx context.Context, reason domain.FailureReason) error {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return nil
	}
	s.cancelled = true
	sec := s.sec
	s.mu.Unlock()

	if sec != nil {
		// Best effort: the peer may already be gone.
		if err := sec.SendMessage(ctx, domain.Message{Type: domain.MessageLoginFailure, Reason: reason}); err != nil {
			s.opts.Logger.Debug(ctx, "failed to notify peer of cancellation",
				map[string]interface{}{"reason": string(reason)})
		}
	}
	return s.Close()
}

// Close implements Session.Close.
func (s *legacySession) Close() error {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return nil
	}
	s.torn = true
	s.mu.Unlock()
	return s.ch.Close()
}

// peerReason keeps wire-supplied reasons inside the taxonomy.
func peerReason(r domain.FailureReason) domain.FailureReason {
	switch r {
	case domain.ReasonUserDeclined, domain.ReasonUserCancelled, domain.ReasonExpired,
		domain.ReasonOtherDeviceAlreadySignedIn, domain.ReasonOtherDeviceNotSignedIn,
		domain.ReasonInvalidCode, domain.ReasonUnsupportedAlgorithm,
		domain.ReasonUnsupportedTransport, domain.ReasonDataMismatch,
		domain.ReasonUnsupportedProtocol, domain.ReasonDeviceAlreadyExists,
		domain.ReasonDeviceNotFound, domain.ReasonUnexpectedMessage:
		return r
	default:
		return domain.ReasonUnknown
	}
}
