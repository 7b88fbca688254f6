package rendezvous

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/errors"
	"github.com/lumichat/rendezvous/securechannel"
	"github.com/lumichat/rendezvous/transport"
)

// pipeChannel is an in-memory transport.Channel half. Two cross-wired halves
// form a duplex mailbox with enough buffering that handshakes can be driven
// sequentially from a single test goroutine.
type pipeChannel struct {
	uri string
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newChannelPair() (*pipeChannel, *pipeChannel) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	a := &pipeChannel{uri: "mem://rendezvous/test", in: ba, out: ab, closed: make(chan struct{})}
	b := &pipeChannel{uri: "mem://rendezvous/test", in: ab, out: ba, closed: make(chan struct{})}
	return a, b
}

func (p *pipeChannel) Create(context.Context) (string, error) { return p.uri, nil }

func (p *pipeChannel) URI() string { return p.uri }

func (p *pipeChannel) Send(ctx context.Context, payload []byte) error {
	select {
	case p.out <- payload:
		return nil
	case <-p.closed:
		return errors.NewExpired("channel closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-p.in:
		return payload, nil
	case <-p.closed:
		return nil, errors.NewExpired("channel closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeChannel) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// testPeer plays the new device's side of the handshake over the given
// channel half.
type testPeer struct {
	ch     transport.Channel
	sec    *securechannel.Secured
	digits string
}

// joinAsPeer sends the plaintext hello and derives the shared cipher from the
// public key embedded in the pairing code.
func joinAsPeer(t *testing.T, ch transport.Channel, codeKey string) *testPeer {
	t.Helper()

	kp, err := securechannel.NewKeyPair()
	require.NoError(t, err)

	hello, err := json.Marshal(domain.Hello{
		Algorithm: domain.SecureChannelAlgorithm,
		Key:       kp.PublicKey(),
	})
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), hello))

	cipher, err := kp.Derive(codeKey)
	require.NoError(t, err)

	return &testPeer{
		ch:     ch,
		sec:    securechannel.NewSecured(ch, cipher),
		digits: cipher.ConfirmationDigits(),
	}
}

func (p *testPeer) send(t *testing.T, msg domain.Message) {
	t.Helper()
	require.NoError(t, p.sec.SendMessage(context.Background(), msg))
}

func (p *testPeer) receive(t *testing.T) domain.Message {
	t.Helper()
	var msg domain.Message
	require.NoError(t, p.sec.ReceiveMessage(context.Background(), &msg))
	return msg
}

// requireReason asserts that err carries the given failure reason.
func requireReason(t *testing.T, err error, want domain.FailureReason) {
	t.Helper()
	require.Error(t, err)
	got, ok := errors.ReasonOf(err)
	require.True(t, ok, "error %v carries no failure reason", err)
	require.Equal(t, want, got)
}
