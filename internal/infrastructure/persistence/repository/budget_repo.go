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

// BudgetRepository implements port.BudgetRepository
type BudgetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBudgetRepository creates a new budget item repository
func NewBudgetRepository(db *sql.DB, logger *zap.Logger) port.BudgetRepository {
	return &BudgetRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new budget item
func (r *BudgetRepository) Create(ctx context.Context, item *entity.BudgetItem) error {
	query := `
		INSERT INTO budget_items (
			id, project_id, code, description, category,
			quantity, unit, unit_price, amount, approval_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		item.ID,
		item.ProjectID,
		item.Code,
		item.Description,
		item.Category,
		item.Quantity,
		item.Unit,
		item.UnitPrice,
		item.Amount,
		item.ApprovalStatus,
	)
	if err != nil {
		r.logger.Error("Failed to create budget item", zap.Error(err))
		return fmt.Errorf("failed to create budget item: %w", err)
	}

	return nil
}

const budgetColumns = `
	id, project_id, code, description, category,
	quantity, unit, unit_price, amount, approval_status,
	approval_instance_id, approved_amount, approved_by, approved_at,
	created_at, updated_at
`

func scanBudgetItem(row interface{ Scan(...interface{}) error }) (*entity.BudgetItem, error) {
	var item entity.BudgetItem
	var category, unit, instanceID, approvedBy sql.NullString
	var approvedAmount sql.NullFloat64
	var approvedAt sql.NullTime

	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.Code,
		&item.Description,
		&category,
		&item.Quantity,
		&unit,
		&item.UnitPrice,
		&item.Amount,
		&item.ApprovalStatus,
		&instanceID,
		&approvedAmount,
		&approvedBy,
		&approvedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Category = category.String
	item.Unit = unit.String
	item.ApprovalInstanceID = instanceID.String
	item.ApprovedBy = approvedBy.String
	if approvedAmount.Valid {
		item.ApprovedAmount = &approvedAmount.Float64
	}
	if approvedAt.Valid {
		item.ApprovedAt = &approvedAt.Time
	}

	return &item, nil
}

// GetByID retrieves a budget item by ID
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*entity.BudgetItem, error) {
	query := `SELECT ` + budgetColumns + ` FROM budget_items WHERE id = ?`

	item, err := scanBudgetItem(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get budget item", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get budget item: %w", err)
	}

	return item, nil
}

// ListByProject retrieves a project's budget items with pagination
func (r *BudgetRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*entity.BudgetItem, error) {
	query := `
		SELECT ` + budgetColumns + `
		FROM budget_items
		WHERE project_id = ?
		ORDER BY code
		LIMIT ? OFFSET ?
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list budget items", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list budget items: %w", err)
	}
	defer rows.Close()

	var items []*entity.BudgetItem
	for rows.Next() {
		item, err := scanBudgetItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// SetSubmitted records the instance back-reference and pending status
func (r *BudgetRepository) SetSubmitted(ctx context.Context, id, instanceID string) error {
	query := `
		UPDATE budget_items
		SET approval_status = ?, approval_instance_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, entity.ApprovalStatusPending, instanceID, id)
	if err != nil {
		r.logger.Error("Failed to mark budget item submitted", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark budget item submitted: %w", err)
	}

	return nil
}

// ApplyDecision writes the terminal approval projection back to the item
func (r *BudgetRepository) ApplyDecision(ctx context.Context, id, status string, approvedAmount *float64, approvedBy string, approvedAt *time.Time) error {
	query := `
		UPDATE budget_items
		SET approval_status = ?, approved_amount = ?, approved_by = ?,
			approved_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, status, approvedAmount, approvedBy, approvedAt, id)
	if err != nil {
		r.logger.Error("Failed to apply decision to budget item",
			zap.String("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to apply decision to budget item: %w", err)
	}

	return nil
}

// Verify interface compliance
var _ port.BudgetRepository = (*BudgetRepository)(nil)
