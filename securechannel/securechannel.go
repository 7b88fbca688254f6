// Package securechannel implements the end-to-end secure layer the two
// devices run over the rendezvous channel: X25519 key agreement, HKDF-SHA256
// key derivation, and AES-256-GCM frame encryption. It also derives the
// human-comparable confirmation digits used by the legacy protocol to detect
// a man in the middle.
package securechannel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keyInfo    = "rendezvous.channel.key.v1"
	digitsInfo = "rendezvous.channel.sas.v1"

	aesKeySize = 32
)

// KeyPair is an ephemeral X25519 key pair, generated fresh for every sign-in
// attempt and discarded with the session.
type KeyPair struct {
	priv *ecdh.PrivateKey
}

// NewKeyPair generates an ephemeral X25519 key pair.
func NewKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate x25519 key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// PublicKey returns the public half, base64 encoded for embedding in the
// pairing code or the hello frame.
func (kp *KeyPair) PublicKey() string {
	return base64.StdEncoding.EncodeToString(kp.priv.PublicKey().Bytes())
}

// Derive runs the key agreement against the peer's base64-encoded public key
// and returns the symmetric cipher for the channel. Both sides derive the
// same cipher and the same confirmation digits.
func (kp *KeyPair) Derive(peerKey string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(peerKey)
	if err != nil {
		return nil, fmt.Errorf("peer key is not valid base64: %w", err)
	}

	pub, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("peer key is not a valid x25519 point: %w", err)
	}

	shared, err := kp.priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to build cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to build gcm: %w", err)
	}

	digits := make([]byte, 5)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(digitsInfo)), digits); err != nil {
		return nil, fmt.Errorf("digit derivation failed: %w", err)
	}

	return &Cipher{aead: aead, digits: decimalSAS(digits)}, nil
}

// Cipher encrypts and decrypts channel frames with the derived shared key.
type Cipher struct {
	aead   cipher.AEAD
	digits string
}

// ConfirmationDigits returns the SAS digits derived alongside the channel
// key, formatted as three space-separated four-digit groups.
func (c *Cipher) ConfirmationDigits() string {
	return c.digits
}

// Seal encrypts plaintext into a base64 frame. The random nonce is prepended
// to the ciphertext.
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a base64 frame produced by Seal on the other side.
func (c *Cipher) Open(frame string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		return nil, fmt.Errorf("frame is not valid base64: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, fmt.Errorf("frame shorter than nonce")
	}
	nonce, ct := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt frame: %w", err)
	}
	return plaintext, nil
}

// decimalSAS turns 5 bytes of key material into three numbers in the range
// 1000-9191, the short-authentication-string decimal encoding.
func decimalSAS(b []byte) string {
	d1 := (uint16(b[0])<<5 | uint16(b[1])>>3) + 1000
	d2 := ((uint16(b[1])&0x07)<<10 | uint16(b[2])<<2 | uint16(b[3])>>6) + 1000
	d3 := ((uint16(b[3])&0x3F)<<7 | uint16(b[4])>>1) + 1000
	return fmt.Sprintf("%04d %04d %04d", d1, d2, d3)
}
