package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bangunpro/rab-approval/internal/application/dispatcher"
	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"github.com/bangunpro/rab-approval/internal/domain/event"
)

// SubmitResult is returned after an entity is submitted for approval
type SubmitResult struct {
	InstanceID  string `json:"instance_id"`
	Status      string `json:"status"`
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	NextRole    string `json:"next_role,omitempty"`
}

// DecisionResult is returned after a decision is processed
type DecisionResult struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	Completed  bool   `json:"completed"`
	NextStep   int    `json:"next_step,omitempty"`
	NextRole   string `json:"next_role,omitempty"`
}

// InstanceStatus is the full read projection of an instance and its ledger
type InstanceStatus struct {
	Instance *entity.ApprovalInstance `json:"instance"`
	Steps    []*entity.ApprovalStep   `json:"steps"`
}

// ApprovalService owns the approval instance lifecycle: materialization
// at submission, the decision state machine, and the status projection.
type ApprovalService interface {
	Submit(ctx context.Context, entityType, entityID, submitterID string) (*SubmitResult, error)
	Decide(ctx context.Context, instanceID, stepID, decision, comments, conditions, approverID string) (*DecisionResult, error)
	GetStatus(ctx context.Context, instanceID string) (*InstanceStatus, error)
}

type approvalServiceImpl struct {
	workflowRepo port.WorkflowRepository
	instanceRepo port.InstanceRepository
	stepRepo     port.StepRepository
	budgetRepo   port.BudgetRepository
	userRepo     port.UserRepository
	txManager    port.TransactionManager
	events       dispatcher.Dispatcher
	logger       Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	workflowRepo port.WorkflowRepository,
	instanceRepo port.InstanceRepository,
	stepRepo port.StepRepository,
	budgetRepo port.BudgetRepository,
	userRepo port.UserRepository,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		workflowRepo: workflowRepo,
		instanceRepo: instanceRepo,
		stepRepo:     stepRepo,
		budgetRepo:   budgetRepo,
		userRepo:     userRepo,
		txManager:    txManager,
		events:       events,
		logger:       logger,
	}
}

// Submit initializes an approval instance for a budget item: looks up the
// entity and the active definition, snapshots the entity, materializes
// the amount-gated step ledger, and writes the pending back-reference
// onto the item. The first step's role holders are notified via the
// dispatcher after the transaction commits.
func (s *approvalServiceImpl) Submit(ctx context.Context, entityType, entityID, submitterID string) (*SubmitResult, error) {
	item, err := s.budgetRepo.GetByID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("entity %s/%s: %w", entityType, entityID, approval.ErrNotFound)
	}

	def, err := s.workflowRepo.GetActiveByEntityType(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("get active definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("entity type %s: %w", entityType, approval.ErrNoActiveWorkflow)
	}

	totalAmount := item.Amount
	snapshot := map[string]interface{}{
		"amount":      totalAmount,
		"description": item.Description,
		"category":    item.Category,
		"code":        item.Code,
		"project_id":  item.ProjectID,
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	now := time.Now()
	instance := &entity.ApprovalInstance{
		ID:                uuid.NewString(),
		EntityType:        entityType,
		EntityID:          entityID,
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		Snapshot:          string(snapshotJSON),
		TotalAmount:       totalAmount,
		SubmitterID:       submitterID,
		OverallStatus:     entity.InstanceStatusPending,
		CurrentStep:       1,
		Version:           1,
		SubmittedAt:       now,
	}

	steps, err := materializeSteps(def, instance, snapshot, now)
	if err != nil {
		return nil, err
	}
	instance.TotalSteps = len(steps)

	// A definition whose conditions exclude every step is a
	// misconfiguration. Rejecting outright beats approving a spend
	// nobody reviewed.
	if len(steps) == 0 {
		instance.OverallStatus = entity.InstanceStatusRejected
		instance.CurrentStep = 0
		instance.CompletedAt = &now
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instanceRepo.Create(txCtx, instance); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		if len(steps) > 0 {
			if err := s.stepRepo.CreateBatch(txCtx, steps); err != nil {
				return fmt.Errorf("create steps: %w", err)
			}
			if err := s.budgetRepo.SetSubmitted(txCtx, entityID, instance.ID); err != nil {
				return fmt.Errorf("mark entity pending: %w", err)
			}
			return nil
		}
		return s.budgetRepo.ApplyDecision(txCtx, entityID, entity.ApprovalStatusRejected, nil, "", &now)
	})
	if err != nil {
		s.logger.Error("Failed to initialize approval instance",
			"error", err,
			"entity_type", entityType,
			"entity_id", entityID,
		)
		return nil, err
	}

	result := &SubmitResult{
		InstanceID:  instance.ID,
		Status:      instance.OverallStatus,
		CurrentStep: instance.CurrentStep,
		TotalSteps:  instance.TotalSteps,
	}

	if len(steps) == 0 {
		s.logger.Error("No steps materialized, instance rejected as misconfiguration",
			"instance_id", instance.ID,
			"definition_id", def.ID,
			"total_amount", totalAmount,
		)
		s.emit(ctx, event.New(event.TypeInstanceRejected, instance.ID, "", map[string]interface{}{
			"submitter_id": submitterID,
			"reason":       "no applicable approval steps",
			"total_amount": totalAmount,
		}))
		return result, nil
	}

	first := steps[0]
	result.NextRole = first.RequiredRole

	s.logger.Info("Approval instance initialized",
		"instance_id", instance.ID,
		"entity_id", entityID,
		"total_steps", instance.TotalSteps,
		"total_amount", totalAmount,
	)

	s.emit(ctx, event.New(event.TypeStepPending, instance.ID, first.ID, map[string]interface{}{
		"step_number":   first.StepNumber,
		"step_name":     first.Name,
		"required_role": first.RequiredRole,
		"submitter_id":  submitterID,
		"total_amount":  totalAmount,
	}))

	return result, nil
}

// materializeSteps selects the applicable templates in definition order
// and renumbers them contiguously from 1. Excluded templates leave no
// placeholder. Step due dates come from the definition's per-step SLA.
func materializeSteps(def *entity.WorkflowDefinition, instance *entity.ApprovalInstance, snapshot map[string]interface{}, now time.Time) ([]*entity.ApprovalStep, error) {
	var steps []*entity.ApprovalStep
	for i := range def.Steps {
		tmpl := &def.Steps[i]
		include, err := tmpl.AppliesTo(instance.TotalAmount, snapshot)
		if err != nil {
			return nil, fmt.Errorf("step template %d: %w", tmpl.StepNumber, err)
		}
		if !include {
			continue
		}

		step := &entity.ApprovalStep{
			ID:           uuid.NewString(),
			InstanceID:   instance.ID,
			StepNumber:   len(steps) + 1,
			Name:         tmpl.Name,
			RequiredRole: tmpl.RequiredRole,
			Status:       entity.StepStatusPending,
		}
		if def.StepSLADays > 0 {
			due := now.AddDate(0, 0, def.StepSLADays*step.StepNumber)
			step.DueDate = &due
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Decide processes one decision for a step of an instance. The whole
// read-modify-write sequence runs in a single transaction, and the
// instance update carries an optimistic version check, so two approvers
// racing on the last two steps cannot both (or neither) complete the
// instance. The entity projection is written after the instance's own
// transition inside the same transaction.
func (s *approvalServiceImpl) Decide(ctx context.Context, instanceID, stepID, decision, comments, conditions, approverID string) (*DecisionResult, error) {
	if !entity.ValidDecision(decision) {
		return nil, fmt.Errorf("decision %q: %w", decision, approval.ErrInvalidDecision)
	}

	var result *DecisionResult
	var emitted []*event.Event

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := s.instanceRepo.GetByID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("get instance: %w", err)
		}
		if instance == nil {
			return fmt.Errorf("instance %s: %w", instanceID, approval.ErrNotFound)
		}

		lifecycle := approval.NewLifecycle(approval.State(instance.OverallStatus))
		if lifecycle.State().IsTerminal() {
			return fmt.Errorf("instance %s is %s: %w", instanceID, instance.OverallStatus, approval.ErrAlreadyTerminal)
		}

		step, err := s.stepRepo.GetByID(txCtx, stepID)
		if err != nil {
			return fmt.Errorf("get step: %w", err)
		}
		if step == nil || step.InstanceID != instanceID {
			return fmt.Errorf("step %s: %w", stepID, approval.ErrNotFound)
		}
		if step.Status != entity.StepStatusPending {
			return fmt.Errorf("step %d already %s: %w", step.StepNumber, step.Status, approval.ErrAlreadyTerminal)
		}

		approver, err := s.userRepo.GetByID(txCtx, approverID)
		if err != nil {
			return fmt.Errorf("get approver: %w", err)
		}
		if approver == nil {
			return fmt.Errorf("approver %s: %w", approverID, approval.ErrNotFound)
		}
		if approver.Role != step.RequiredRole && approver.Role != entity.RoleAdmin {
			return fmt.Errorf("role %s cannot decide step requiring %s: %w",
				approver.Role, step.RequiredRole, approval.ErrUnauthorized)
		}

		now := time.Now()
		step.Decision = decision
		step.ApproverID = approverID
		step.Comments = comments
		step.Conditions = conditions
		step.ApprovedAt = &now
		if decision == entity.DecisionReject {
			step.Status = entity.StepStatusRejected
		} else {
			step.Status = entity.StepStatusApproved
		}
		if err := s.stepRepo.RecordDecision(txCtx, step); err != nil {
			return fmt.Errorf("record decision: %w", err)
		}

		emitted = append(emitted, event.New(event.TypeDecisionRecorded, instanceID, stepID, map[string]interface{}{
			"step_number":  step.StepNumber,
			"decision":     decision,
			"approver_id":  approverID,
			"submitter_id": instance.SubmitterID,
		}))

		if decision == entity.DecisionReject {
			if err := lifecycle.Fire(txCtx, approval.TriggerReject); err != nil {
				return err
			}
			instance.OverallStatus = string(lifecycle.State())
			instance.CompletedAt = &now
			if err := s.instanceRepo.UpdateState(txCtx, instance); err != nil {
				return fmt.Errorf("update instance: %w", err)
			}
			// Entity projection only after the instance transition is recorded
			if err := s.budgetRepo.ApplyDecision(txCtx, instance.EntityID, entity.ApprovalStatusRejected, nil, approverID, &now); err != nil {
				return fmt.Errorf("propagate rejection: %w", err)
			}

			emitted = append(emitted, event.New(event.TypeInstanceRejected, instanceID, stepID, map[string]interface{}{
				"step_number":  step.StepNumber,
				"approver_id":  approverID,
				"submitter_id": instance.SubmitterID,
				"comments":     comments,
			}))
			result = &DecisionResult{InstanceID: instanceID, Status: instance.OverallStatus, Completed: true}
			return nil
		}

		steps, err := s.stepRepo.GetByInstanceID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		approvedCount := 0
		var next *entity.ApprovalStep
		for _, ledger := range steps {
			if ledger.ID == step.ID {
				ledger = step
			}
			if ledger.Status == entity.StepStatusApproved {
				approvedCount++
			} else if ledger.Status == entity.StepStatusPending && next == nil {
				next = ledger
			}
		}

		if approvedCount == instance.TotalSteps {
			if err := lifecycle.Fire(txCtx, approval.TriggerComplete); err != nil {
				return err
			}
			instance.OverallStatus = string(lifecycle.State())
			instance.CompletedAt = &now
			if err := s.instanceRepo.UpdateState(txCtx, instance); err != nil {
				return fmt.Errorf("update instance: %w", err)
			}
			amount := instance.TotalAmount
			if err := s.budgetRepo.ApplyDecision(txCtx, instance.EntityID, entity.ApprovalStatusApproved, &amount, approverID, &now); err != nil {
				return fmt.Errorf("propagate approval: %w", err)
			}

			emitted = append(emitted, event.New(event.TypeInstanceApproved, instanceID, "", map[string]interface{}{
				"submitter_id": instance.SubmitterID,
				"total_amount": instance.TotalAmount,
			}))
			result = &DecisionResult{InstanceID: instanceID, Status: instance.OverallStatus, Completed: true}
			return nil
		}

		if next == nil {
			// Approved count below total but nothing pending means the
			// ledger is inconsistent with the instance counter
			return fmt.Errorf("instance %s: no pending step with %d/%d approved: %w",
				instanceID, approvedCount, instance.TotalSteps, approval.ErrConflict)
		}

		if err := lifecycle.Fire(txCtx, approval.TriggerAdvance); err != nil {
			return err
		}
		instance.CurrentStep = next.StepNumber
		if err := s.instanceRepo.UpdateState(txCtx, instance); err != nil {
			return fmt.Errorf("update instance: %w", err)
		}

		emitted = append(emitted, event.New(event.TypeStepPending, instanceID, next.ID, map[string]interface{}{
			"step_number":   next.StepNumber,
			"step_name":     next.Name,
			"required_role": next.RequiredRole,
			"submitter_id":  instance.SubmitterID,
			"total_amount":  instance.TotalAmount,
		}))
		result = &DecisionResult{
			InstanceID: instanceID,
			Status:     instance.OverallStatus,
			NextStep:   next.StepNumber,
			NextRole:   next.RequiredRole,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to process decision",
			"error", err,
			"instance_id", instanceID,
			"step_id", stepID,
			"decision", decision,
		)
		return nil, err
	}

	s.logger.Info("Decision processed",
		"instance_id", instanceID,
		"step_id", stepID,
		"decision", decision,
		"status", result.Status,
	)

	// Events fire only after the transaction committed
	for _, evt := range emitted {
		s.emit(ctx, evt)
	}

	return result, nil
}

// GetStatus returns the instance and its ordered ledger
func (s *approvalServiceImpl) GetStatus(ctx context.Context, instanceID string) (*InstanceStatus, error) {
	instance, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("instance %s: %w", instanceID, approval.ErrNotFound)
	}

	steps, err := s.stepRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	return &InstanceStatus{Instance: instance, Steps: steps}, nil
}

// emit dispatches asynchronously; notification failures never fail the
// transition that produced them
func (s *approvalServiceImpl) emit(ctx context.Context, evt *event.Event) {
	if s.events == nil {
		return
	}
	s.events.DispatchAsync(context.WithoutCancel(ctx), evt)
}
