package approval

import "errors"

var (
	// ErrNotFound is returned when a referenced entity, instance, step,
	// or definition does not exist
	ErrNotFound = errors.New("not found")

	// ErrNoActiveWorkflow is returned when no active workflow definition
	// exists for the entity type being submitted
	ErrNoActiveWorkflow = errors.New("no active workflow definition")

	// ErrUnauthorized is returned when the approver's role does not match
	// the step's required role
	ErrUnauthorized = errors.New("approver role not permitted for step")

	// ErrAlreadyTerminal is returned when a decision targets a step or
	// instance that has already reached a final status
	ErrAlreadyTerminal = errors.New("approval already reached terminal status")

	// ErrInvalidDecision is returned for decisions outside the recognized set
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrConflict is returned when an optimistic version check fails
	ErrConflict = errors.New("concurrent modification detected")

	// ErrInvalidTransition is returned when a lifecycle transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)
