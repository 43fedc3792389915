package approval

// Trigger represents an event that can move an instance between states
type Trigger string

const (
	// TriggerAdvance records an approval on a non-final step; the
	// instance stays pending with the pointer moved forward
	TriggerAdvance Trigger = "ADVANCE"

	// TriggerComplete records the approval of the last outstanding step
	TriggerComplete Trigger = "COMPLETE"

	// TriggerReject records a rejection on any step
	TriggerReject Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
