package entity

import "time"

// ApprovalStep is one ledger entry of an instance. Steps are created in
// batch at materialization, numbered contiguously from 1, and each is
// decided exactly once.
type ApprovalStep struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"instance_id"`
	StepNumber   int        `json:"step_number"`
	Name         string     `json:"name"`
	RequiredRole string     `json:"required_role"`
	Status       string     `json:"status"`
	Decision     string     `json:"decision,omitempty"`
	ApproverID   string     `json:"approver_id,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	Conditions   string     `json:"conditions,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	EscalatedAt  *time.Time `json:"escalated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PendingStepView is a projection row for the pending-approvals query:
// a pending step joined with summary fields of its pending instance.
type PendingStepView struct {
	StepID      string    `json:"step_id"`
	InstanceID  string    `json:"instance_id"`
	StepNumber  int       `json:"step_number"`
	StepName    string    `json:"step_name"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	TotalAmount float64   `json:"total_amount"`
	SubmitterID string    `json:"submitter_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}
