package entity

import "time"

// ApprovalInstance is one in-flight approval process bound to a business
// entity. The snapshot is denormalized from the entity at submission time
// and is the source of truth for the approval; the entity only carries a
// read-only status projection written back by the processor.
type ApprovalInstance struct {
	ID                string     `json:"id"`
	EntityType        string     `json:"entity_type"`
	EntityID          string     `json:"entity_id"`
	DefinitionID      string     `json:"definition_id"`
	DefinitionVersion int        `json:"definition_version"`
	Snapshot          string     `json:"snapshot"`
	TotalAmount       float64    `json:"total_amount"`
	SubmitterID       string     `json:"submitter_id"`
	OverallStatus     string     `json:"overall_status"`
	CurrentStep       int        `json:"current_step"`
	TotalSteps        int        `json:"total_steps"`
	Version           int64      `json:"version"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the instance has reached a final status
func (i *ApprovalInstance) IsTerminal() bool {
	return i.OverallStatus == InstanceStatusApproved || i.OverallStatus == InstanceStatusRejected
}
