package approval

// NewLifecycle builds the instance lifecycle machine positioned at the
// given state. A pending instance may advance (stay pending with the
// step pointer moved), complete, or be rejected; approved and rejected
// are terminal, so any trigger fired from them fails with
// ErrInvalidTransition. Callers should surface that as ErrAlreadyTerminal.
func NewLifecycle(current State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StatePending).
		Permit(TriggerAdvance, StatePending).
		Permit(TriggerComplete, StateApproved).
		Permit(TriggerReject, StateRejected)

	return builder.Build(current)
}
