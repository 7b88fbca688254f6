package domain

// TransportHTTPV1 is the only rendezvous transport either code format can
// point at: a single-payload HTTP mailbox on a relay.
const TransportHTTPV1 = "http.v1"

// IntentReciprocate marks the code as generated by an already signed-in
// device that wants to authorize a new one.
const IntentReciprocate = "login.reciprocate"

// LegacyCode is the JSON structure encoded into the QR code by the legacy
// peer-to-peer protocol.
type LegacyCode struct {
	Rendezvous RendezvousDescriptor `json:"rendezvous"`
	Intent     string               `json:"intent"`
	Homeserver string               `json:"homeserver,omitempty"`
}

// RendezvousDescriptor tells the scanning device where the channel lives and
// which key agreement to run on it.
type RendezvousDescriptor struct {
	Transport CodeTransport `json:"transport"`
	Algorithm string        `json:"algorithm"`
	Key       string        `json:"key"`
}

// CodeTransport locates the rendezvous channel.
type CodeTransport struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// ModernCode is the JSON structure encoded into the QR code by the modern
// OIDC-flavored protocol.
type ModernCode struct {
	RendezvousURL string `json:"rendezvous_url"`
	Flow          string `json:"flow"`
	Algorithm     string `json:"algorithm"`
	Key           string `json:"key"`
}
