package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"github.com/bangunpro/rab-approval/pkg/utils"
)

// BudgetService manages RAB line items outside the approval lifecycle:
// creating drafts and reading them back. Submission and status write-back
// belong to ApprovalService.
type BudgetService interface {
	CreateItem(ctx context.Context, item *entity.BudgetItem) error
	GetItem(ctx context.Context, id string) (*entity.BudgetItem, error)
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*entity.BudgetItem, error)
}

type budgetServiceImpl struct {
	budgetRepo port.BudgetRepository
	logger     Logger
}

// NewBudgetService creates a new BudgetService
func NewBudgetService(budgetRepo port.BudgetRepository, logger Logger) BudgetService {
	return &budgetServiceImpl{
		budgetRepo: budgetRepo,
		logger:     logger,
	}
}

// CreateItem validates and persists a new draft line item. Amount is
// derived from quantity and unit price when not supplied.
func (s *budgetServiceImpl) CreateItem(ctx context.Context, item *entity.BudgetItem) error {
	if item.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if err := utils.ValidateProjectCode(item.Code); err != nil {
		return err
	}
	if item.Amount == 0 {
		item.Amount = item.Quantity * item.UnitPrice
	}
	if err := utils.ValidateAmount(item.Amount); err != nil {
		return err
	}

	item.ID = uuid.NewString()
	item.Description = utils.SanitizeString(item.Description)
	item.ApprovalStatus = entity.ApprovalStatusDraft

	if err := s.budgetRepo.Create(ctx, item); err != nil {
		return err
	}

	s.logger.Info("Budget item created",
		"item_id", item.ID,
		"project_id", item.ProjectID,
		"amount", item.Amount,
	)
	return nil
}

func (s *budgetServiceImpl) GetItem(ctx context.Context, id string) (*entity.BudgetItem, error) {
	item, err := s.budgetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("budget item %s: %w", id, approval.ErrNotFound)
	}
	return item, nil
}

func (s *budgetServiceImpl) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*entity.BudgetItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.budgetRepo.ListByProject(ctx, projectID, limit, offset)
}
