package securechannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func derivedPair(t *testing.T) (*Cipher, *Cipher) {
	t.Helper()

	a, err := NewKeyPair()
	require.NoError(t, err)
	b, err := NewKeyPair()
	require.NoError(t, err)

	ca, err := a.Derive(b.PublicKey())
	require.NoError(t, err)
	cb, err := b.Derive(a.PublicKey())
	require.NoError(t, err)

	return ca, cb
}

func TestDerive_BothSidesAgree(t *testing.T) {
	ca, cb := derivedPair(t)

	assert.Equal(t, ca.ConfirmationDigits(), cb.ConfirmationDigits())
	assert.Regexp(t, `^\d{4} \d{4} \d{4}$`, ca.ConfirmationDigits())

	sealed, err := ca.Seal([]byte(`{"type":"login.initiate"}`))
	require.NoError(t, err)
	opened, err := cb.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"login.initiate"}`, string(opened))
}

func TestDerive_DistinctPairsDisagree(t *testing.T) {
	ca, _ := derivedPair(t)
	cc, _ := derivedPair(t)

	sealed, err := ca.Seal([]byte("payload"))
	require.NoError(t, err)
	_, err = cc.Open(sealed)
	assert.Error(t, err, "frame sealed under a different secret must not open")
}

func TestDerive_RejectsBadPeerKey(t *testing.T) {
	kp, err := NewKeyPair()
	require.NoError(t, err)

	_, err = kp.Derive("%%% not base64 %%%")
	assert.Error(t, err)

	_, err = kp.Derive("dG9vIHNob3J0") // valid base64, wrong length
	assert.Error(t, err)
}

func TestOpen_RejectsTamperedFrame(t *testing.T) {
	ca, cb := derivedPair(t)

	sealed, err := ca.Seal([]byte("payload"))
	require.NoError(t, err)

	tampered := []byte(sealed)
	if tampered[len(tampered)-5] == 'A' {
		tampered[len(tampered)-5] = 'B'
	} else {
		tampered[len(tampered)-5] = 'A'
	}
	_, err = cb.Open(string(tampered))
	assert.Error(t, err)

	_, err = cb.Open("dG9vIHNob3J0")
	assert.Error(t, err, "frame shorter than a nonce must not open")
}

func TestSeal_FreshNoncePerFrame(t *testing.T) {
	ca, _ := derivedPair(t)

	first, err := ca.Seal([]byte("payload"))
	require.NoError(t, err)
	second, err := ca.Seal([]byte("payload"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDecimalSAS(t *testing.T) {
	// Worked example: all-zero key material maps to the range floor.
	assert.Equal(t, "1000 1000 1000", decimalSAS([]byte{0, 0, 0, 0, 0}))
	// All-ones maps to the range ceiling, 8191+1000 per group.
	assert.Equal(t, "9191 9191 9191", decimalSAS([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}))
	// Each group stays four digits and inside [1000, 9191].
	assert.Equal(t, "5096 1000 1000", decimalSAS([]byte{0x80, 0x00, 0x00, 0x00, 0x00}))
}
