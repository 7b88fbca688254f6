package rendezvous

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/rendezvous/domain"
)

type staticSecrets map[string]string

func (s staticSecrets) Secrets(context.Context) (map[string]string, error) {
	return s, nil
}

func modernOpts() ModernOptions {
	return ModernOptions{
		HomeserverURL: "https://chat.example.com",
		Secrets: staticSecrets{
			"cross_signing.master":       "bWFzdGVy",
			"cross_signing.self_signing": "c2VsZg==",
			"backup.recovery_key":        "cmVjb3Zlcnk=",
		},
	}
}

// startModern generates the code and joins the peer side, without touching
// the negotiation yet.
func startModern(t *testing.T, opts ModernOptions) (ModernSession, *testPeer) {
	t.Helper()
	ctx := context.Background()

	ours, theirs := newChannelPair()
	sess := NewModernSession(ours, opts)

	code, err := sess.GenerateCode(ctx)
	require.NoError(t, err)

	var parsed domain.ModernCode
	require.NoError(t, json.Unmarshal([]byte(code), &parsed))
	require.Equal(t, domain.SecureChannelAlgorithm, parsed.Algorithm)
	require.Equal(t, "mem://rendezvous/test", parsed.RendezvousURL)

	return sess, joinAsPeer(t, theirs, parsed.Key)
}

func TestModernSession_Negotiation(t *testing.T) {
	sess, peer := startModern(t, modernOpts())

	peer.send(t, domain.Message{
		Type:      domain.MessageLoginProtocols,
		Protocols: []string{"carrier_pigeon.v2", domain.ProtocolDeviceAuthGrant},
	})

	neg, err := sess.NegotiateProtocols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolDeviceAuthGrant, neg.Protocol)

	accepted := peer.receive(t)
	assert.Equal(t, domain.MessageLoginProtocolAccepted, accepted.Type)
	assert.Equal(t, domain.ProtocolDeviceAuthGrant, accepted.Protocol)
}

func TestModernSession_NoSharedProtocol(t *testing.T) {
	sess, peer := startModern(t, modernOpts())

	peer.send(t, domain.Message{
		Type:      domain.MessageLoginProtocols,
		Protocols: []string{"carrier_pigeon.v2"},
	})

	_, err := sess.NegotiateProtocols(context.Background())
	requireReason(t, err, domain.ReasonUnsupportedProtocol)
}

func TestModernSession_GrantPrefersCompleteURI(t *testing.T) {
	ctx := context.Background()
	sess, peer := startModern(t, modernOpts())

	peer.send(t, domain.Message{Type: domain.MessageLoginProtocols, Protocols: []string{domain.ProtocolDeviceAuthGrant}})
	_, err := sess.NegotiateProtocols(ctx)
	require.NoError(t, err)
	peer.receive(t)

	peer.send(t, domain.Message{
		Type:                    domain.MessageDeviceAuthGrant,
		VerificationURI:         "https://auth.example.com/verify",
		VerificationURIComplete: "https://auth.example.com/verify?user_code=ABCD-EFGH",
	})

	grant, err := sess.DeviceAuthorizationGrant(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/verify?user_code=ABCD-EFGH", grant.VerificationURI)
}

func TestModernSession_GrantFallsBackToPlainURI(t *testing.T) {
	ctx := context.Background()
	sess, peer := startModern(t, modernOpts())

	peer.send(t, domain.Message{Type: domain.MessageLoginProtocols, Protocols: []string{domain.ProtocolDeviceAuthGrant}})
	_, err := sess.NegotiateProtocols(ctx)
	require.NoError(t, err)
	peer.receive(t)

	peer.send(t, domain.Message{
		Type:            domain.MessageDeviceAuthGrant,
		VerificationURI: "https://auth.example.com/verify",
	})

	grant, err := sess.DeviceAuthorizationGrant(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/verify", grant.VerificationURI)
}

func TestModernSession_UnexpectedMessageDuringGrant(t *testing.T) {
	ctx := context.Background()
	sess, peer := startModern(t, modernOpts())

	peer.send(t, domain.Message{Type: domain.MessageLoginProtocols, Protocols: []string{domain.ProtocolDeviceAuthGrant}})
	_, err := sess.NegotiateProtocols(ctx)
	require.NoError(t, err)
	peer.receive(t)

	peer.send(t, domain.Message{Type: domain.MessageLoginSecrets})

	_, err = sess.DeviceAuthorizationGrant(ctx)
	requireReason(t, err, domain.ReasonUnexpectedMessage)
}

func TestModernSession_ShareSecrets(t *testing.T) {
	ctx := context.Background()
	opts := modernOpts()
	sess, peer := startModern(t, opts)

	peer.send(t, domain.Message{Type: domain.MessageLoginProtocols, Protocols: []string{domain.ProtocolDeviceAuthGrant}})
	_, err := sess.NegotiateProtocols(ctx)
	require.NoError(t, err)
	peer.receive(t)

	peer.send(t, domain.Message{Type: domain.MessageDeviceAuthGrant, VerificationURI: "https://auth.example.com/verify"})
	_, err = sess.DeviceAuthorizationGrant(ctx)
	require.NoError(t, err)

	// The peer signs in through the grant and announces its session.
	peer.send(t, domain.Message{Type: domain.MessageLoginSuccess, DeviceID: "NEWDEV02"})
	require.NoError(t, sess.ShareSecrets(ctx))

	secrets := peer.receive(t)
	assert.Equal(t, domain.MessageLoginSecrets, secrets.Type)
	assert.Equal(t, map[string]string(opts.Secrets.(staticSecrets)), secrets.Secrets)

	require.NoError(t, sess.Close())
}

func TestModernSession_PeerFailureBeforeSecrets(t *testing.T) {
	ctx := context.Background()
	sess, peer := startModern(t, modernOpts())

	peer.send(t, domain.Message{Type: domain.MessageLoginProtocols, Protocols: []string{domain.ProtocolDeviceAuthGrant}})
	_, err := sess.NegotiateProtocols(ctx)
	require.NoError(t, err)
	peer.receive(t)

	peer.send(t, domain.Message{Type: domain.MessageDeviceAuthGrant, VerificationURI: "https://auth.example.com/verify"})
	_, err = sess.DeviceAuthorizationGrant(ctx)
	require.NoError(t, err)

	peer.send(t, domain.Message{Type: domain.MessageLoginFailure, Reason: domain.ReasonDeviceAlreadyExists})
	err = sess.ShareSecrets(ctx)
	requireReason(t, err, domain.ReasonDeviceAlreadyExists)
}

func TestModernSession_CancelWhileConnecting(t *testing.T) {
	ctx := context.Background()
	sess, _ := startModern(t, modernOpts())

	// Negotiation stays in flight: the peer said hello in startModern but
	// never offers its protocols.
	done := make(chan error, 1)
	go func() {
		_, err := sess.NegotiateProtocols(context.Background())
		done <- err
	}()

	require.NoError(t, sess.Cancel(ctx, domain.ReasonUserCancelled))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation did not unblock after cancel")
	}
}

func TestModernSession_CancelNotifiesPeer(t *testing.T) {
	ctx := context.Background()
	sess, peer := startModern(t, modernOpts())

	peer.send(t, domain.Message{Type: domain.MessageLoginProtocols, Protocols: []string{domain.ProtocolDeviceAuthGrant}})
	_, err := sess.NegotiateProtocols(ctx)
	require.NoError(t, err)
	peer.receive(t)

	require.NoError(t, sess.Cancel(ctx, domain.ReasonUserCancelled))

	failure := peer.receive(t)
	assert.Equal(t, domain.MessageLoginFailure, failure.Type)
	assert.Equal(t, domain.ReasonUserCancelled, failure.Reason)
}
