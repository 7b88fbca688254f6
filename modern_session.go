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

// ModernOptions configure a modern OIDC-flavored session.
type ModernOptions struct {
	HomeserverURL string
	// Secrets supplies the bundle shared with the new device once it has
	// signed in through the device-authorization grant.
	Secrets SecretsProvider
	Logger  log.Logger
}

// modernSession wraps the OIDC-flavored rendezvous protocol: the new device
// runs a device-authorization grant against the homeserver and relays its
// verification URI; this device approves out of band and finally shares the
// secret bundle.
type modernSession struct {
	ch   transport.Channel
	opts ModernOptions

	kp  *securechannel.KeyPair
	sec *securechannel.Secured

	mu        sync.Mutex
	torn      bool
	cancelled bool
}

// NewModernSession builds a modern session over the given channel.
//
//nolint:ireturn
func NewModernSession(ch transport.Channel, opts ModernOptions) ModernSession {
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	return &modernSession{ch: ch, opts: opts}
}

// GenerateCode implements Session.GenerateCode.
func (s *modernSession) GenerateCode(ctx context.Context) (string, error) {
	uri, err := s.ch.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create rendezvous channel: %w", err)
	}

	kp, err := securechannel.NewKeyPair()
	if err != nil {
		return "", err
	}
	s.kp = kp

	code, err := json.Marshal(domain.ModernCode{
		RendezvousURL: uri,
		Flow:          domain.IntentReciprocate,
		Algorithm:     domain.SecureChannelAlgorithm,
		Key:           kp.PublicKey(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode pairing code: %w", err)
	}
	return string(code), nil
}

// NegotiateProtocols implements ModernSession.NegotiateProtocols. It blocks
// for the peer's hello, derives the secure channel, and agrees on a
// sub-protocol with the peer.
func (s *modernSession) NegotiateProtocols(ctx context.Context) (*Negotiation, error) {
	raw, err := s.ch.Receive(ctx)
	if err != nil {
		return nil, err
	}

	var hello domain.Hello
	if err := json.Unmarshal(raw, &hello); err != nil {
		return nil, errors.NewInvalidCode("peer hello is unparseable")
	}
	if hello.Algorithm != domain.SecureChannelAlgorithm {
		return nil, errors.NewUnsupportedAlgorithm(hello.Algorithm)
	}

	cipher, err := s.kp.Derive(hello.Key)
	if err != nil {
		return nil, errors.NewInvalidCode(err.Error())
	}
	// Cancel may run concurrently with this operation and reads s.sec under
	// the mutex; publish it the same way.
	sec := securechannel.NewSecured(s.ch, cipher)
	s.mu.Lock()
	s.sec = sec
	s.mu.Unlock()

	var msg domain.Message
	if err := sec.ReceiveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	if msg.Type == domain.MessageLoginFailure {
		return nil, errors.NewSignInError(peerReason(msg.Reason), "peer reported failure")
	}
	if msg.Type != domain.MessageLoginProtocols {
		return nil, errors.NewUnexpectedMessage(msg.Type, domain.MessageLoginProtocols)
	}

	chosen := ""
	for _, p := range msg.Protocols {
		if p == domain.ProtocolDeviceAuthGrant {
			chosen = p
			break
		}
	}
	if chosen == "" {
		return nil, errors.NewUnsupportedProtocol(
			fmt.Sprintf("no shared sub-protocol in %v", msg.Protocols))
	}

	err = sec.SendMessage(ctx, domain.Message{
		Type:     domain.MessageLoginProtocolAccepted,
		Protocol: chosen,
	})
	if err != nil {
		return nil, err
	}

	return &Negotiation{Protocol: chosen}, nil
}

// secure returns the derived channel wrapper under the mutex.
func (s *modernSession) secure() *securechannel.Secured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sec
}

// DeviceAuthorizationGrant implements ModernSession.DeviceAuthorizationGrant.
// It blocks until the peer relays its grant and returns the verification URI
// this device should open, preferring the pre-filled variant.
func (s *modernSession) DeviceAuthorizationGrant(ctx context.Context) (*Grant, error) {
	var msg domain.Message
	if err := s.secure().ReceiveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case domain.MessageDeviceAuthGrant:
		uri := msg.VerificationURIComplete
		if uri == "" {
			uri = msg.VerificationURI
		}
		return &Grant{VerificationURI: uri}, nil
	case domain.MessageLoginFailure:
		return nil, errors.NewSignInError(peerReason(msg.Reason), "peer aborted during grant")
	default:
		return nil, errors.NewUnexpectedMessage(msg.Type, domain.MessageDeviceAuthGrant)
	}
}

// ShareSecrets implements ModernSession.ShareSecrets. It blocks until the
// peer reports a materialized session, then sends the secret bundle.
func (s *modernSession) ShareSecrets(ctx context.Context) error {
	sec := s.secure()
	var msg domain.Message
	if err := sec.ReceiveMessage(ctx, &msg); err != nil {
		return err
	}
	switch msg.Type {
	case domain.MessageLoginSuccess:
	case domain.MessageLoginFailure:
		return errors.NewSignInError(peerReason(msg.Reason), "peer failed to sign in")
	default:
		return errors.NewUnexpectedMessage(msg.Type, domain.MessageLoginSuccess)
	}

	secrets := map[string]string{}
	if s.opts.Secrets != nil {
		bundle, err := s.opts.Secrets.Secrets(ctx)
		if err != nil {
			return fmt.Errorf("failed to collect secret bundle: %w", err)
		}
		secrets = bundle
	}

	return sec.SendMessage(ctx, domain.Message{
		Type:    domain.MessageLoginSecrets,
		Secrets: secrets,
	})
}

// Cancel implements Session.Cancel.
func (s *modernSession) Cancel(ctx context.Context, reason domain.FailureReason) error {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return nil
	}
	s.cancelled = true
	sec := s.sec
	s.mu.Unlock()

	if sec != nil {
		if err := sec.SendMessage(ctx, domain.Message{Type: domain.MessageLoginFailure, Reason: reason}); err != nil {
			s.opts.Logger.Debug(ctx, "failed to notify peer of cancellation",
				map[string]interface{}{"reason": string(reason)})
		}
	}
	return s.Close()
}

// Close implements Session.Close.
func (s *modernSession) Close() error {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return nil
	}
	s.torn = true
	s.mu.Unlock()
	return s.ch.Close()
}
