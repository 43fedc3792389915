package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"github.com/bangunpro/rab-approval/internal/domain/event"
)

type approvalFixture struct {
	workflowRepo *fakeWorkflowRepo
	instanceRepo *fakeInstanceRepo
	stepRepo     *fakeStepRepo
	budgetRepo   *fakeBudgetRepo
	userRepo     *fakeUserRepo
	events       *captureDispatcher
	svc          ApprovalService
}

func floatPtr(v float64) *float64 { return &v }

// twoStepDefinition mirrors the standard setup: a manager step with no
// conditions and a director step gated at 500,000,000.
func twoStepDefinition() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		ID:         "def-1",
		EntityType: entity.EntityTypeRAB,
		Name:       "RAB approval",
		Version:    1,
		Active:     true,
		Steps: []entity.StepTemplate{
			{StepNumber: 1, Name: "Manager review", RequiredRole: "manager"},
			{StepNumber: 2, Name: "Director review", RequiredRole: "director", MinAmount: floatPtr(500000000)},
		},
	}
}

func newApprovalFixture(t *testing.T, def *entity.WorkflowDefinition, amount float64) *approvalFixture {
	t.Helper()

	f := &approvalFixture{
		workflowRepo: newFakeWorkflowRepo(),
		instanceRepo: newFakeInstanceRepo(),
		stepRepo:     &fakeStepRepo{},
		budgetRepo:   newFakeBudgetRepo(),
		userRepo: newFakeUserRepo(
			&entity.User{ID: "u-manager", Role: "manager", Active: true},
			&entity.User{ID: "u-director", Role: "director", Active: true},
			&entity.User{ID: "u-admin", Role: entity.RoleAdmin, Active: true},
			&entity.User{ID: "u-submitter", Role: "staff", Active: true},
		),
		events: &captureDispatcher{},
	}

	if def != nil {
		require.NoError(t, f.workflowRepo.Create(context.Background(), def))
	}
	require.NoError(t, f.budgetRepo.Create(context.Background(), &entity.BudgetItem{
		ID:          "rab-1",
		ProjectID:   "proj-1",
		Code:        "STR-001",
		Description: "Structural works",
		Category:    "structural",
		Amount:      amount,
	}))

	f.svc = NewApprovalService(
		f.workflowRepo, f.instanceRepo, f.stepRepo, f.budgetRepo, f.userRepo,
		fakeTxManager{}, f.events, nopLogger{},
	)
	return f
}

func (f *approvalFixture) submit(t *testing.T) *SubmitResult {
	t.Helper()
	res, err := f.svc.Submit(context.Background(), entity.EntityTypeRAB, "rab-1", "u-submitter")
	require.NoError(t, err)
	return res
}

func (f *approvalFixture) ledger(t *testing.T, instanceID string) []*entity.ApprovalStep {
	t.Helper()
	steps, err := f.stepRepo.GetByInstanceID(context.Background(), instanceID)
	require.NoError(t, err)
	return steps
}

func TestSubmit_MaterializesAllApplicableSteps(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)

	res := f.submit(t)

	assert.Equal(t, entity.InstanceStatusPending, res.Status)
	assert.Equal(t, 1, res.CurrentStep)
	assert.Equal(t, 2, res.TotalSteps)
	assert.Equal(t, "manager", res.NextRole)

	steps := f.ledger(t, res.InstanceID)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, "manager", steps[0].RequiredRole)
	assert.Equal(t, 2, steps[1].StepNumber)
	assert.Equal(t, "director", steps[1].RequiredRole)

	// Entity carries the back-reference and a pending projection
	item, _ := f.budgetRepo.GetByID(context.Background(), "rab-1")
	assert.Equal(t, entity.ApprovalStatusPending, item.ApprovalStatus)
	assert.Equal(t, res.InstanceID, item.ApprovalInstanceID)

	assert.Equal(t, []event.Type{event.TypeStepPending}, f.events.typesSeen())
}

func TestSubmit_ExcludedStepsLeaveNoGap(t *testing.T) {
	// Amount below the director threshold: only the manager step
	// materializes, renumbered from 1 with no placeholder.
	f := newApprovalFixture(t, twoStepDefinition(), 100000000)

	res := f.submit(t)

	assert.Equal(t, 1, res.TotalSteps)
	steps := f.ledger(t, res.InstanceID)
	require.Len(t, steps, 1)
	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, "manager", steps[0].RequiredRole)
}

func TestSubmit_BoundsAreInclusive(t *testing.T) {
	def := twoStepDefinition()
	def.Steps[1].MaxAmount = floatPtr(900000000)

	tests := []struct {
		name      string
		amount    float64
		wantSteps int
	}{
		{"exactly min", 500000000, 2},
		{"exactly max", 900000000, 2},
		{"below min", 499999999, 1},
		{"above max", 900000001, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newApprovalFixture(t, def, tt.amount)
			res := f.submit(t)
			assert.Equal(t, tt.wantSteps, res.TotalSteps)
		})
	}
}

func TestSubmit_ExpressionCondition(t *testing.T) {
	def := twoStepDefinition()
	def.Steps[1].MinAmount = nil
	def.Steps[1].Expression = `category == 'structural' && amount >= 200000000`

	f := newApprovalFixture(t, def, 300000000)
	res := f.submit(t)
	assert.Equal(t, 2, res.TotalSteps)

	f = newApprovalFixture(t, def, 100000000)
	res = f.submit(t)
	assert.Equal(t, 1, res.TotalSteps)
}

func TestSubmit_EntityNotFound(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 1000)

	_, err := f.svc.Submit(context.Background(), entity.EntityTypeRAB, "rab-missing", "u-submitter")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestSubmit_NoActiveWorkflow(t *testing.T) {
	def := twoStepDefinition()
	def.Active = false
	f := newApprovalFixture(t, def, 1000)

	_, err := f.svc.Submit(context.Background(), entity.EntityTypeRAB, "rab-1", "u-submitter")
	assert.ErrorIs(t, err, approval.ErrNoActiveWorkflow)
}

func TestSubmit_ZeroMaterializedStepsRejectsAsMisconfiguration(t *testing.T) {
	def := twoStepDefinition()
	def.Steps[0].MinAmount = floatPtr(500000000)
	f := newApprovalFixture(t, def, 100) // below every threshold

	res := f.submit(t)

	assert.Equal(t, entity.InstanceStatusRejected, res.Status)
	assert.Equal(t, 0, res.TotalSteps)

	inst, _ := f.instanceRepo.GetByID(context.Background(), res.InstanceID)
	require.NotNil(t, inst.CompletedAt)

	item, _ := f.budgetRepo.GetByID(context.Background(), "rab-1")
	assert.Equal(t, entity.ApprovalStatusRejected, item.ApprovalStatus)

	assert.Equal(t, []event.Type{event.TypeInstanceRejected}, f.events.typesSeen())
}

func TestDecide_ApproveAdvancesToNextStep(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	dec, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionApprove, "looks fine", "", "u-manager")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusPending, dec.Status)
	assert.False(t, dec.Completed)
	assert.Equal(t, 2, dec.NextStep)
	assert.Equal(t, "director", dec.NextRole)

	inst, _ := f.instanceRepo.GetByID(context.Background(), res.InstanceID)
	assert.Equal(t, 2, inst.CurrentStep)

	updated := f.ledger(t, res.InstanceID)
	assert.Equal(t, entity.StepStatusApproved, updated[0].Status)
	assert.Equal(t, entity.DecisionApprove, updated[0].Decision)
	assert.Equal(t, "u-manager", updated[0].ApproverID)
	require.NotNil(t, updated[0].ApprovedAt)

	assert.Contains(t, f.events.typesSeen(), event.TypeDecisionRecorded)
	assert.Contains(t, f.events.typesSeen(), event.TypeStepPending)
}

func TestDecide_AllApprovedCompletesInstance(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	_, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionApprove, "", "", "u-manager")
	require.NoError(t, err)

	dec, err := f.svc.Decide(context.Background(), res.InstanceID, steps[1].ID,
		entity.DecisionApproveWithConditions, "ok", "subject to audit", "u-director")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusApproved, dec.Status)
	assert.True(t, dec.Completed)

	inst, _ := f.instanceRepo.GetByID(context.Background(), res.InstanceID)
	require.NotNil(t, inst.CompletedAt)

	item, _ := f.budgetRepo.GetByID(context.Background(), "rab-1")
	assert.Equal(t, entity.ApprovalStatusApproved, item.ApprovalStatus)
	require.NotNil(t, item.ApprovedAmount)
	assert.Equal(t, 600000000.0, *item.ApprovedAmount)
	assert.Equal(t, "u-director", item.ApprovedBy)

	assert.Contains(t, f.events.typesSeen(), event.TypeInstanceApproved)
}

func TestDecide_SingleStepInstanceCompletesAlone(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 100000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)
	require.Len(t, steps, 1)

	dec, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionApprove, "", "", "u-manager")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusApproved, dec.Status)
	assert.True(t, dec.Completed)
}

func TestDecide_RejectKillsWholeInstance(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	dec, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionReject, "over budget", "", "u-manager")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusRejected, dec.Status)
	assert.True(t, dec.Completed)

	inst, _ := f.instanceRepo.GetByID(context.Background(), res.InstanceID)
	require.NotNil(t, inst.CompletedAt)

	// The later step is left untouched, not cancelled or skipped
	updated := f.ledger(t, res.InstanceID)
	assert.Equal(t, entity.StepStatusRejected, updated[0].Status)
	assert.Equal(t, entity.StepStatusPending, updated[1].Status)

	item, _ := f.budgetRepo.GetByID(context.Background(), "rab-1")
	assert.Equal(t, entity.ApprovalStatusRejected, item.ApprovalStatus)
	assert.Nil(t, item.ApprovedAmount)

	assert.Contains(t, f.events.typesSeen(), event.TypeInstanceRejected)
}

func TestDecide_TerminalInstanceRefusesFurtherDecisions(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	_, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionReject, "", "", "u-manager")
	require.NoError(t, err)

	_, err = f.svc.Decide(context.Background(), res.InstanceID, steps[1].ID,
		entity.DecisionApprove, "", "", "u-director")
	assert.ErrorIs(t, err, approval.ErrAlreadyTerminal)

	// Status is unchanged by the refused call
	inst, _ := f.instanceRepo.GetByID(context.Background(), res.InstanceID)
	assert.Equal(t, entity.InstanceStatusRejected, inst.OverallStatus)
}

func TestDecide_DecidedStepRefusesSecondDecision(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	_, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionApprove, "", "", "u-manager")
	require.NoError(t, err)

	_, err = f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionReject, "", "", "u-manager")
	assert.ErrorIs(t, err, approval.ErrAlreadyTerminal)
}

func TestDecide_RoleMismatchIsUnauthorized(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	_, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionApprove, "", "", "u-director")
	assert.ErrorIs(t, err, approval.ErrUnauthorized)

	// Nothing mutated
	updated := f.ledger(t, res.InstanceID)
	assert.Equal(t, entity.StepStatusPending, updated[0].Status)
}

func TestDecide_AdminOverridesRoleGate(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	dec, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionApprove, "", "", "u-admin")
	require.NoError(t, err)
	assert.Equal(t, 2, dec.NextStep)
}

func TestDecide_UnknownDecisionRejected(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	_, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		"defer", "", "", "u-manager")
	assert.ErrorIs(t, err, approval.ErrInvalidDecision)
}

func TestDecide_MissingInstanceOrStep(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	_, err := f.svc.Decide(context.Background(), "inst-missing", steps[0].ID,
		entity.DecisionApprove, "", "", "u-manager")
	assert.ErrorIs(t, err, approval.ErrNotFound)

	_, err = f.svc.Decide(context.Background(), res.InstanceID, "step-missing",
		entity.DecisionApprove, "", "", "u-manager")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestDecide_StaleVersionSurfacesConflict(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)
	steps := f.ledger(t, res.InstanceID)

	f.instanceRepo.staleOnce = true
	_, err := f.svc.Decide(context.Background(), res.InstanceID, steps[0].ID,
		entity.DecisionApprove, "", "", "u-manager")
	assert.ErrorIs(t, err, approval.ErrConflict)
}

func TestGetStatus_IsIdempotent(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)

	first, err := f.svc.GetStatus(context.Background(), res.InstanceID)
	require.NoError(t, err)
	second, err := f.svc.GetStatus(context.Background(), res.InstanceID)
	require.NoError(t, err)

	assert.Equal(t, first.Instance.OverallStatus, second.Instance.OverallStatus)
	require.Equal(t, len(first.Steps), len(second.Steps))
	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].ID, second.Steps[i].ID)
		assert.Equal(t, first.Steps[i].Status, second.Steps[i].Status)
	}
}

func TestGetStatus_NotFound(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)

	_, err := f.svc.GetStatus(context.Background(), "inst-missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}
