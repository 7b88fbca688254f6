package domain

// MessageType identifies a rendezvous protocol message exchanged over the
// secure channel.
type MessageType string

const (
	// Legacy peer-to-peer protocol.
	MessageLoginInitiate MessageType = "login.initiate"
	MessageLoginApproved MessageType = "login.approved"
	MessageLoginDeclined MessageType = "login.declined"
	MessageLoginSuccess  MessageType = "login.success"
	MessageLoginVerified MessageType = "login.verified"

	// Modern OIDC-flavored protocol.
	MessageLoginProtocols        MessageType = "login.protocols"
	MessageLoginProtocolAccepted MessageType = "login.protocol_accepted"
	MessageDeviceAuthGrant       MessageType = "login.device_authorization_grant"
	MessageLoginSecrets          MessageType = "login.secrets"

	// Either protocol, terminal.
	MessageLoginFailure MessageType = "login.failure"
)

// ProtocolLoginToken is the legacy sub-protocol name: the existing device
// obtains a login token and sends it to the peer.
const ProtocolLoginToken = "login_token"

// ProtocolDeviceAuthGrant is the modern sub-protocol name: the new device
// runs an OAuth device-authorization grant against the homeserver.
const ProtocolDeviceAuthGrant = "device_authorization_grant"

// Message is the envelope for every payload exchanged over the secure
// channel once the shared secret is established. Only the fields relevant to
// the Type are populated.
type Message struct {
	Type                    MessageType       `json:"type"`
	Intent                  string            `json:"intent,omitempty"`
	Protocols               []string          `json:"protocols,omitempty"`
	Protocol                string            `json:"protocol,omitempty"`
	Homeserver              string            `json:"homeserver,omitempty"`
	LoginToken              string            `json:"login_token,omitempty"`
	DeviceID                string            `json:"device_id,omitempty"`
	VerificationURI         string            `json:"verification_uri,omitempty"`
	VerificationURIComplete string            `json:"verification_uri_complete,omitempty"`
	Secrets                 map[string]string `json:"secrets,omitempty"`
	Reason                  FailureReason     `json:"reason,omitempty"`
}

// Hello is the one plaintext frame of the handshake: the joining device
// announces its ephemeral public key and the algorithm it derived it for.
type Hello struct {
	Algorithm string `json:"algorithm"`
	Key       string `json:"key"`
}

// SecureChannelAlgorithm is the only key-agreement suite either protocol
// generation speaks.
const SecureChannelAlgorithm = "ecdh.x25519-hkdf-sha256.aes-256-gcm.v1"
