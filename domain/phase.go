package domain

// Phase is the single source of truth for what the sign-in UI should be
// showing. Exactly one phase is active at any time; transitions are driven
// solely by the orchestrator.
type Phase string

const (
	// PhaseLoading is the initial phase while the pairing code is generated.
	PhaseLoading Phase = "loading"
	// PhaseShowingQR means the pairing code is ready to be displayed.
	PhaseShowingQR Phase = "showing_qr"
	// PhaseConnected means the peer connected on the legacy protocol and the
	// confirmation digits are available for out-of-band comparison.
	PhaseConnected Phase = "connected"
	// PhaseOutOfBandConfirmation means the modern protocol returned a
	// verification URI the user must approve in a separate browsing context.
	PhaseOutOfBandConfirmation Phase = "out_of_band_confirmation"
	// PhaseWaitingForDevice means the credential hand-off is in progress and
	// the new device is completing its side of the exchange.
	PhaseWaitingForDevice Phase = "waiting_for_device"
	// PhaseVerifying means cross-signing verification of the new device is in
	// progress. Only entered when crypto is enabled on the existing device.
	PhaseVerifying Phase = "verifying"
	// PhaseError is the terminal failure phase; the associated FailureReason
	// says what went wrong.
	PhaseError Phase = "error"
)
