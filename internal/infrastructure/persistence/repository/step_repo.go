package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts the full step ledger of an instance in one statement batch
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	if len(steps) == 0 {
		return nil
	}

	query := `
		INSERT INTO approval_steps (
			id, instance_id, step_number, name, required_role, status, due_date
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	exec := getExecutor(ctx, r.db)
	for _, step := range steps {
		_, err := exec.ExecContext(ctx, query,
			step.ID,
			step.InstanceID,
			step.StepNumber,
			step.Name,
			step.RequiredRole,
			step.Status,
			step.DueDate,
		)
		if err != nil {
			r.logger.Error("Failed to create step",
				zap.String("instance_id", step.InstanceID),
				zap.Int("step_number", step.StepNumber),
				zap.Error(err))
			return fmt.Errorf("failed to create step %d: %w", step.StepNumber, err)
		}
	}

	return nil
}

const stepColumns = `
	id, instance_id, step_number, name, required_role, status,
	decision, approver_id, comments, conditions,
	due_date, approved_at, escalated_at, created_at, updated_at
`

func scanStep(row interface{ Scan(...interface{}) error }) (*entity.ApprovalStep, error) {
	var step entity.ApprovalStep
	var decision, approverID, comments, conditions sql.NullString
	var dueDate, approvedAt, escalatedAt sql.NullTime

	err := row.Scan(
		&step.ID,
		&step.InstanceID,
		&step.StepNumber,
		&step.Name,
		&step.RequiredRole,
		&step.Status,
		&decision,
		&approverID,
		&comments,
		&conditions,
		&dueDate,
		&approvedAt,
		&escalatedAt,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Decision = decision.String
	step.ApproverID = approverID.String
	step.Comments = comments.String
	step.Conditions = conditions.String
	if dueDate.Valid {
		step.DueDate = &dueDate.Time
	}
	if approvedAt.Valid {
		step.ApprovedAt = &approvedAt.Time
	}
	if escalatedAt.Valid {
		step.EscalatedAt = &escalatedAt.Time
	}

	return &step, nil
}

// GetByID retrieves a step by ID
func (r *StepRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE id = ?`

	step, err := scanStep(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	return step, nil
}

// GetByInstanceID retrieves the full step ledger of an instance in step order
func (r *StepRepository) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE instance_id = ? ORDER BY step_number`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list steps", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// RecordDecision persists the outcome fields of a decided step
func (r *StepRepository) RecordDecision(ctx context.Context, step *entity.ApprovalStep) error {
	query := `
		UPDATE approval_steps
		SET status = ?, decision = ?, approver_id = ?, comments = ?,
			conditions = ?, approved_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		step.Status,
		step.Decision,
		step.ApproverID,
		step.Comments,
		step.Conditions,
		step.ApprovedAt,
		step.ID,
	)
	if err != nil {
		r.logger.Error("Failed to record decision", zap.String("id", step.ID), zap.Error(err))
		return fmt.Errorf("failed to record decision: %w", err)
	}

	return nil
}

// ListPendingForRole retrieves the pending-approvals worklist: pending
// steps of pending instances that are at that step, joined with instance
// summary fields, oldest submission first. An empty role matches all roles.
func (r *StepRepository) ListPendingForRole(ctx context.Context, role, entityType string, limit, offset int) ([]*entity.PendingStepView, error) {
	query := `
		SELECT s.id, s.instance_id, s.step_number, s.name,
			i.entity_type, i.entity_id, i.total_amount, i.submitter_id, i.submitted_at
		FROM approval_steps s
		JOIN approval_instances i ON i.id = s.instance_id
		WHERE s.status = 'pending'
			AND i.overall_status = 'pending'
			AND i.current_step = s.step_number
	`
	var args []interface{}
	if role != "" {
		query += ` AND s.required_role = ?`
		args = append(args, role)
	}
	if entityType != "" {
		query += ` AND i.entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY i.submitted_at ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list pending steps", zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending steps: %w", err)
	}
	defer rows.Close()

	var views []*entity.PendingStepView
	for rows.Next() {
		var v entity.PendingStepView
		err := rows.Scan(
			&v.StepID,
			&v.InstanceID,
			&v.StepNumber,
			&v.StepName,
			&v.EntityType,
			&v.EntityID,
			&v.TotalAmount,
			&v.SubmitterID,
			&v.SubmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending step: %w", err)
		}
		views = append(views, &v)
	}

	return views, rows.Err()
}

// ListOverdue retrieves active pending steps whose due date has passed and
// that have not been escalated yet
func (r *StepRepository) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.ApprovalStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE status = 'pending'
			AND due_date IS NOT NULL
			AND due_date < ?
			AND escalated_at IS NULL
			AND instance_id IN (
				SELECT id FROM approval_instances WHERE overall_status = 'pending'
			)
		ORDER BY due_date ASC
		LIMIT ?
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, asOf, limit)
	if err != nil {
		r.logger.Error("Failed to list overdue steps", zap.Error(err))
		return nil, fmt.Errorf("failed to list overdue steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// MarkEscalated stamps the escalation time so a step is escalated at most once
func (r *StepRepository) MarkEscalated(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE approval_steps SET escalated_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to mark step escalated", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark step escalated: %w", err)
	}

	return nil
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
