package securechannel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumichat/rendezvous/transport"
)

// frame is the wire shape of an encrypted payload on the relay.
type frame struct {
	Ciphertext string `json:"ciphertext"`
}

// Secured layers message encryption over a rendezvous channel. Every payload
// is a JSON frame holding one sealed ciphertext.
type Secured struct {
	ch     transport.Channel
	cipher *Cipher
}

// NewSecured wraps ch with the derived cipher.
func NewSecured(ch transport.Channel, cipher *Cipher) *Secured {
	return &Secured{ch: ch, cipher: cipher}
}

// ConfirmationDigits exposes the cipher's SAS digits.
func (s *Secured) ConfirmationDigits() string {
	return s.cipher.ConfirmationDigits()
}

// SendMessage marshals v, seals it, and publishes the frame.
func (s *Secured) SendMessage(ctx context.Context, v any) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	sealed, err := s.cipher.Seal(plaintext)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame{Ciphertext: sealed})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return s.ch.Send(ctx, payload)
}

// ReceiveMessage blocks for the next frame, opens it, and unmarshals into v.
func (s *Secured) ReceiveMessage(ctx context.Context, v any) error {
	payload, err := s.ch.Receive(ctx)
	if err != nil {
		return err
	}
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("peer sent an unparseable frame: %w", err)
	}
	plaintext, err := s.cipher.Open(f.Ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("peer sent an unparseable message: %w", err)
	}
	return nil
}
