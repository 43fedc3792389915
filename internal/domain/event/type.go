package event

// Type identifies the type of domain event
type Type string

const (
	// TypeStepPending fires when a step becomes the current pending step
	// (instance created, or pointer advanced after an approval)
	TypeStepPending Type = "approval.step_pending"

	// TypeDecisionRecorded fires after any decision is written to a step
	TypeDecisionRecorded Type = "approval.decision_recorded"

	// TypeInstanceApproved fires when every materialized step has been approved
	TypeInstanceApproved Type = "approval.instance_approved"

	// TypeInstanceRejected fires when any step is rejected, or when an
	// instance is rejected at creation as a misconfiguration
	TypeInstanceRejected Type = "approval.instance_rejected"

	// TypeStepEscalated fires when a pending step passes its due date
	TypeStepEscalated Type = "approval.step_escalated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStepPending,
		TypeDecisionRecorded,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeStepEscalated:
		return true
	default:
		return false
	}
}
