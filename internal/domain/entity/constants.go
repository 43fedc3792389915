package entity

// Entity types that can be routed through an approval workflow
const (
	EntityTypeRAB       = "rab"
	EntityTypeWorkOrder = "work_order"
)

// Overall status constants for ApprovalInstance
const (
	InstanceStatusPending  = "pending"
	InstanceStatusApproved = "approved"
	InstanceStatusRejected = "rejected"
)

// Status constants for ApprovalStep
const (
	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
	StepStatusSkipped  = "skipped"
)

// Decision constants recorded on a step
const (
	DecisionApprove               = "approve"
	DecisionReject                = "reject"
	DecisionApproveWithConditions = "approve_with_conditions"
)

// Notification type constants
const (
	NotificationTypeApprovalRequest = "approval_request"
	NotificationTypeApproved        = "approved"
	NotificationTypeRejected        = "rejected"
	NotificationTypeEscalation      = "escalation"
	NotificationTypeCompleted       = "completed"
)

// Notification status constants
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusRead    = "read"
	NotificationStatusFailed  = "failed"
)

// Approval status constants denormalized onto the originating entity
const (
	ApprovalStatusDraft    = "draft"
	ApprovalStatusPending  = "pending_approval"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// RoleAdmin may decide any step and receives escalation notices
const RoleAdmin = "admin"

// ValidDecision reports whether d is a recognized step decision
func ValidDecision(d string) bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionApproveWithConditions:
		return true
	default:
		return false
	}
}
