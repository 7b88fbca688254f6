package domain

// FailureReason classifies why a sign-in attempt ended in the error phase.
// The values form a closed taxonomy: legacy-protocol reasons, reasons shared
// by both protocols, modern-protocol reasons, and ReasonRateLimited which is
// synthesized locally from an HTTP 429 and never sent on the wire by either
// protocol.
type FailureReason string

const (
	// Shared by both protocols.
	ReasonUnknown       FailureReason = "unknown"
	ReasonExpired       FailureReason = "expired"
	ReasonUserCancelled FailureReason = "user_cancelled"

	// Legacy peer-to-peer protocol.
	ReasonHomeserverLacksSupport     FailureReason = "homeserver_lacks_support"
	ReasonUserDeclined               FailureReason = "user_declined"
	ReasonOtherDeviceAlreadySignedIn FailureReason = "other_device_already_signed_in"
	ReasonOtherDeviceNotSignedIn     FailureReason = "other_device_not_signed_in"
	ReasonInvalidCode                FailureReason = "invalid_code"
	ReasonUnsupportedAlgorithm       FailureReason = "unsupported_algorithm"
	ReasonUnsupportedTransport       FailureReason = "unsupported_transport"
	ReasonDataMismatch               FailureReason = "data_mismatch"

	// Modern OIDC-flavored protocol.
	ReasonUnsupportedProtocol FailureReason = "unsupported_protocol"
	ReasonDeviceAlreadyExists FailureReason = "device_already_exists"
	ReasonDeviceNotFound      FailureReason = "device_not_found"
	ReasonUnexpectedMessage   FailureReason = "unexpected_message_received"

	// Synthesized by the orchestrator from an HTTP 429 on login-token
	// issuance. Not part of either protocol's native taxonomy.
	ReasonRateLimited FailureReason = "rate_limited"
)
