package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// WorkflowRepository implements port.WorkflowRepository. Step templates
// are stored as a JSON column; they are only ever read as a whole when a
// definition is materialized.
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow definition repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new workflow definition
func (r *WorkflowRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (
			id, entity_type, name, version, active, step_sla_days, steps
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		def.ID,
		def.EntityType,
		def.Name,
		def.Version,
		def.Active,
		def.StepSLADays,
		string(steps),
	)
	if err != nil {
		r.logger.Error("Failed to create workflow definition", zap.Error(err))
		return fmt.Errorf("failed to create workflow definition: %w", err)
	}

	return nil
}

const workflowColumns = `
	id, entity_type, name, version, active, step_sla_days, steps,
	created_at, updated_at
`

func scanWorkflow(row interface{ Scan(...interface{}) error }) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var steps string

	err := row.Scan(
		&def.ID,
		&def.EntityType,
		&def.Name,
		&def.Version,
		&def.Active,
		&def.StepSLADays,
		&steps,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}

	return &def, nil
}

// GetByID retrieves a workflow definition by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE id = ?`

	def, err := scanWorkflow(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	return def, nil
}

// GetActiveByEntityType retrieves the single active definition for an entity type
func (r *WorkflowRepository) GetActiveByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE entity_type = ? AND active = 1`

	def, err := scanWorkflow(getExecutor(ctx, r.db).QueryRowContext(ctx, query, entityType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active workflow definition",
			zap.String("entity_type", entityType), zap.Error(err))
		return nil, fmt.Errorf("failed to get active workflow definition: %w", err)
	}

	return def, nil
}

// Update persists name, version, SLA and steps of an existing definition
func (r *WorkflowRepository) Update(ctx context.Context, def *entity.WorkflowDefinition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	query := `
		UPDATE workflow_definitions
		SET name = ?, version = ?, step_sla_days = ?, steps = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		def.Name,
		def.Version,
		def.StepSLADays,
		string(steps),
		def.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow definition", zap.String("id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow definition: %w", err)
	}

	return nil
}

// SetActive flips the active flag of a single definition
func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE workflow_definitions SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, active, id)
	if err != nil {
		r.logger.Error("Failed to set workflow active flag",
			zap.String("id", id), zap.Bool("active", active), zap.Error(err))
		return fmt.Errorf("failed to set workflow active flag: %w", err)
	}

	return nil
}

// DeactivateByEntityType clears the active flag for all definitions of an entity type
func (r *WorkflowRepository) DeactivateByEntityType(ctx context.Context, entityType string) error {
	query := `UPDATE workflow_definitions SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE entity_type = ?`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, entityType)
	if err != nil {
		r.logger.Error("Failed to deactivate workflow definitions",
			zap.String("entity_type", entityType), zap.Error(err))
		return fmt.Errorf("failed to deactivate workflow definitions: %w", err)
	}

	return nil
}

// List retrieves definitions, optionally filtered by entity type
func (r *WorkflowRepository) List(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions`
	var args []interface{}
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY entity_type, version DESC`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
