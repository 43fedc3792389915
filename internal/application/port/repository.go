package port

import (
	"context"
	"time"

	"github.com/bangunpro/rab-approval/internal/domain/entity"
)

// WorkflowRepository defines persistence operations for WorkflowDefinition
type WorkflowRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*entity.WorkflowDefinition, error)
	GetActiveByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error)
	Update(ctx context.Context, def *entity.WorkflowDefinition) error
	SetActive(ctx context.Context, id string, active bool) error
	DeactivateByEntityType(ctx context.Context, entityType string) error
	List(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error)
}

// InstanceRepository defines persistence operations for ApprovalInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.ApprovalInstance) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error)
	GetByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalInstance, error)

	// UpdateState persists status, current step and completion time with an
	// optimistic check against instance.Version; on success the version is
	// bumped, on a stale version approval.ErrConflict is returned.
	UpdateState(ctx context.Context, instance *entity.ApprovalInstance) error

	List(ctx context.Context, status string, limit, offset int) ([]*entity.ApprovalInstance, error)
}

// StepRepository defines persistence operations for ApprovalStep
type StepRepository interface {
	CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalStep, error)
	GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.ApprovalStep, error)
	RecordDecision(ctx context.Context, step *entity.ApprovalStep) error
	ListPendingForRole(ctx context.Context, role, entityType string, limit, offset int) ([]*entity.PendingStepView, error)
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.ApprovalStep, error)
	MarkEscalated(ctx context.Context, id string, at time.Time) error
}

// NotificationRepository defines persistence operations for ApprovalNotification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.ApprovalNotification) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalNotification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.ApprovalNotification, error)
	ListPending(ctx context.Context, limit int) ([]*entity.ApprovalNotification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errorMsg string) error
	MarkRead(ctx context.Context, id string, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// BudgetRepository is the originating-entity store for RAB line items.
// The approval engine only reads items and writes back the denormalized
// approval projection.
type BudgetRepository interface {
	Create(ctx context.Context, item *entity.BudgetItem) error
	GetByID(ctx context.Context, id string) (*entity.BudgetItem, error)
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*entity.BudgetItem, error)

	// SetSubmitted records the instance back-reference and pending status
	// at submission time
	SetSubmitted(ctx context.Context, id, instanceID string) error

	// ApplyDecision writes the terminal approval projection
	ApplyDecision(ctx context.Context, id, status string, approvedAmount *float64, approvedBy string, approvedAt *time.Time) error
}

// UserRepository defines lookups used for authorization and recipient resolution
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
