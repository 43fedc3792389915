package entity

import "time"

// ApprovalNotification is one outbox row created as a side effect of an
// instance or step transition. Delivery happens outside the engine; rows
// are only mutated to mark sent/read and purged by the retention job.
type ApprovalNotification struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"instance_id"`
	StepID       string     `json:"step_id,omitempty"`
	RecipientID  string     `json:"recipient_id"`
	Type         string     `json:"type"`
	Subject      string     `json:"subject"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
