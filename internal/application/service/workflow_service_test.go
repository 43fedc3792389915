package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
)

func newWorkflowService(repo *fakeWorkflowRepo) WorkflowService {
	return NewWorkflowService(repo, fakeTxManager{}, nopLogger{})
}

func TestCreateDefinition_AssignsIDAndVersion(t *testing.T) {
	repo := newFakeWorkflowRepo()
	svc := newWorkflowService(repo)

	def := &entity.WorkflowDefinition{
		EntityType: entity.EntityTypeRAB,
		Name:       "RAB approval",
		Steps: []entity.StepTemplate{
			{StepNumber: 1, Name: "Manager review", RequiredRole: "manager"},
		},
	}

	require.NoError(t, svc.CreateDefinition(context.Background(), def))
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, 1, def.Version)
	assert.False(t, def.Active, "new definitions start inactive")
}

func TestCreateDefinition_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		def  *entity.WorkflowDefinition
	}{
		{"no entity type", &entity.WorkflowDefinition{
			Steps: []entity.StepTemplate{{StepNumber: 1, RequiredRole: "manager"}},
		}},
		{"no steps", &entity.WorkflowDefinition{EntityType: entity.EntityTypeRAB}},
		{"gap in numbering", &entity.WorkflowDefinition{
			EntityType: entity.EntityTypeRAB,
			Steps: []entity.StepTemplate{
				{StepNumber: 1, RequiredRole: "manager"},
				{StepNumber: 3, RequiredRole: "director"},
			},
		}},
		{"missing role", &entity.WorkflowDefinition{
			EntityType: entity.EntityTypeRAB,
			Steps:      []entity.StepTemplate{{StepNumber: 1}},
		}},
		{"inverted bounds", &entity.WorkflowDefinition{
			EntityType: entity.EntityTypeRAB,
			Steps: []entity.StepTemplate{
				{StepNumber: 1, RequiredRole: "manager", MinAmount: floatPtr(100), MaxAmount: floatPtr(50)},
			},
		}},
	}

	svc := newWorkflowService(newFakeWorkflowRepo())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, svc.CreateDefinition(context.Background(), tt.def))
		})
	}
}

func TestActivateDefinition_EnforcesSingleActive(t *testing.T) {
	repo := newFakeWorkflowRepo()
	svc := newWorkflowService(repo)

	first := twoStepDefinition()
	first.ID = "def-a"
	first.Active = true
	require.NoError(t, repo.Create(context.Background(), first))

	second := twoStepDefinition()
	second.ID = "def-b"
	second.Active = false
	require.NoError(t, repo.Create(context.Background(), second))

	require.NoError(t, svc.ActivateDefinition(context.Background(), "def-b"))

	active, err := svc.GetActiveDefinition(context.Background(), entity.EntityTypeRAB)
	require.NoError(t, err)
	assert.Equal(t, "def-b", active.ID)
	assert.False(t, repo.defs["def-a"].Active)
}

func TestActivateDefinition_NotFound(t *testing.T) {
	svc := newWorkflowService(newFakeWorkflowRepo())
	err := svc.ActivateDefinition(context.Background(), "def-missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestUpdateDefinition_BumpsVersionAndKeepsEntityType(t *testing.T) {
	repo := newFakeWorkflowRepo()
	svc := newWorkflowService(repo)

	def := twoStepDefinition()
	require.NoError(t, repo.Create(context.Background(), def))

	edited := twoStepDefinition()
	edited.EntityType = entity.EntityTypeWorkOrder // must be ignored
	edited.Steps = edited.Steps[:1]
	require.NoError(t, svc.UpdateDefinition(context.Background(), edited))

	assert.Equal(t, 2, edited.Version)
	assert.Equal(t, entity.EntityTypeRAB, edited.EntityType)
}

func TestGetActiveDefinition_NoneActive(t *testing.T) {
	repo := newFakeWorkflowRepo()
	def := twoStepDefinition()
	def.Active = false
	require.NoError(t, repo.Create(context.Background(), def))

	svc := newWorkflowService(repo)
	_, err := svc.GetActiveDefinition(context.Background(), entity.EntityTypeRAB)
	assert.ErrorIs(t, err, approval.ErrNoActiveWorkflow)
}
