package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new approval instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		INSERT INTO approval_instances (
			id, entity_type, entity_id, definition_id, definition_version,
			snapshot, total_amount, submitter_id, overall_status,
			current_step, total_steps, version, submitted_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		instance.ID,
		instance.EntityType,
		instance.EntityID,
		instance.DefinitionID,
		instance.DefinitionVersion,
		instance.Snapshot,
		instance.TotalAmount,
		instance.SubmitterID,
		instance.OverallStatus,
		instance.CurrentStep,
		instance.TotalSteps,
		instance.Version,
		instance.SubmittedAt,
		instance.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

const instanceColumns = `
	id, entity_type, entity_id, definition_id, definition_version,
	snapshot, total_amount, submitter_id, overall_status,
	current_step, total_steps, version, submitted_at, completed_at,
	created_at, updated_at
`

func scanInstance(row interface{ Scan(...interface{}) error }) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	var completedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.DefinitionID,
		&instance.DefinitionVersion,
		&instance.Snapshot,
		&instance.TotalAmount,
		&instance.SubmitterID,
		&instance.OverallStatus,
		&instance.CurrentStep,
		&instance.TotalSteps,
		&instance.Version,
		&instance.SubmittedAt,
		&completedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	return &instance, nil
}

// GetByID retrieves an approval instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ?`

	instance, err := scanInstance(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// GetByEntity retrieves the most recent instance bound to a business entity
func (r *InstanceRepository) GetByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	instance, err := scanInstance(getExecutor(ctx, r.db).QueryRowContext(ctx, query, entityType, entityID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by entity",
			zap.String("entity_type", entityType), zap.String("entity_id", entityID), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// UpdateState persists status, current step and completion time guarded by
// the version the caller loaded. Zero rows affected means another writer
// got there first and the caller must retry from a fresh read.
func (r *InstanceRepository) UpdateState(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		UPDATE approval_instances
		SET overall_status = ?, current_step = ?, completed_at = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		instance.OverallStatus,
		instance.CurrentStep,
		instance.CompletedAt,
		instance.ID,
		instance.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update instance state", zap.String("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("Stale instance version on update",
			zap.String("id", instance.ID), zap.Int64("version", instance.Version))
		return approval.ErrConflict
	}

	instance.Version++
	return nil
}

// List retrieves instances with pagination, optionally filtered by status
func (r *InstanceRepository) List(ctx context.Context, status string, limit, offset int) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances`
	var args []interface{}
	if status != "" {
		query += ` WHERE overall_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY submitted_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.ApprovalInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
