package domain

// Click is a user-initiated action delivered to the orchestrator. The valid
// subset depends on the current Phase; clicks that are not valid for the
// active phase are dropped.
type Click string

const (
	ClickApprove Click = "approve"
	ClickDecline Click = "decline"
	ClickCancel  Click = "cancel"
	ClickBack    Click = "back"
)
