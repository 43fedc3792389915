package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// WorkflowService manages workflow definitions and enforces the
// one-active-definition-per-entity-type invariant
type WorkflowService interface {
	CreateDefinition(ctx context.Context, def *entity.WorkflowDefinition) error
	UpdateDefinition(ctx context.Context, def *entity.WorkflowDefinition) error
	ActivateDefinition(ctx context.Context, id string) error
	GetDefinition(ctx context.Context, id string) (*entity.WorkflowDefinition, error)
	GetActiveDefinition(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error)
	ListDefinitions(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error)
}

type workflowServiceImpl struct {
	workflowRepo port.WorkflowRepository
	txManager    port.TransactionManager
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	workflowRepo port.WorkflowRepository,
	txManager port.TransactionManager,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		workflowRepo: workflowRepo,
		txManager:    txManager,
		logger:       logger,
	}
}

// CreateDefinition validates and persists a new, inactive definition at version 1
func (s *workflowServiceImpl) CreateDefinition(ctx context.Context, def *entity.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("validate definition: %w", err)
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	def.Version = 1
	def.Active = false

	if err := s.workflowRepo.Create(ctx, def); err != nil {
		s.logger.Error("Failed to create workflow definition", "error", err, "entity_type", def.EntityType)
		return err
	}

	s.logger.Info("Workflow definition created", "definition_id", def.ID, "entity_type", def.EntityType)
	return nil
}

// UpdateDefinition replaces the step templates of a definition and bumps
// its version. In-flight instances keep the ledger they were materialized
// with; the version they recorded identifies which revision that was.
func (s *workflowServiceImpl) UpdateDefinition(ctx context.Context, def *entity.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("validate definition: %w", err)
	}

	existing, err := s.workflowRepo.GetByID(ctx, def.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("definition %s: %w", def.ID, approval.ErrNotFound)
	}

	def.EntityType = existing.EntityType
	def.Version = existing.Version + 1
	def.Active = existing.Active

	if err := s.workflowRepo.Update(ctx, def); err != nil {
		s.logger.Error("Failed to update workflow definition", "error", err, "definition_id", def.ID)
		return err
	}

	s.logger.Info("Workflow definition updated",
		"definition_id", def.ID,
		"version", def.Version,
	)
	return nil
}

// ActivateDefinition makes the definition the single active one for its
// entity type, deactivating any previous active definition in the same
// transaction.
func (s *workflowServiceImpl) ActivateDefinition(ctx context.Context, id string) error {
	def, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("definition %s: %w", id, approval.ErrNotFound)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.workflowRepo.DeactivateByEntityType(txCtx, def.EntityType); err != nil {
			return fmt.Errorf("deactivate previous definition: %w", err)
		}
		if err := s.workflowRepo.SetActive(txCtx, id, true); err != nil {
			return fmt.Errorf("activate definition: %w", err)
		}
		return nil
	})

	if err != nil {
		s.logger.Error("Failed to activate workflow definition", "error", err, "definition_id", id)
		return err
	}

	s.logger.Info("Workflow definition activated", "definition_id", id, "entity_type", def.EntityType)
	return nil
}

// GetDefinition retrieves a definition by ID
func (s *workflowServiceImpl) GetDefinition(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	def, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("definition %s: %w", id, approval.ErrNotFound)
	}
	return def, nil
}

// GetActiveDefinition returns the single active definition for an entity
// type, or ErrNoActiveWorkflow. Starting an approval without one is a
// fatal precondition failure fixed by configuration.
func (s *workflowServiceImpl) GetActiveDefinition(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error) {
	def, err := s.workflowRepo.GetActiveByEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("entity type %s: %w", entityType, approval.ErrNoActiveWorkflow)
	}
	return def, nil
}

// ListDefinitions lists definitions, optionally filtered by entity type
func (s *workflowServiceImpl) ListDefinitions(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	return s.workflowRepo.List(ctx, entityType)
}
