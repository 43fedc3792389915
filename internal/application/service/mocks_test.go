package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bangunpro/rab-approval/internal/application/dispatcher"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"github.com/bangunpro/rab-approval/internal/domain/event"
)

// In-memory fakes shared by the service tests. They keep just enough
// state to run full submit-then-decide scenarios without a database.

type fakeWorkflowRepo struct {
	defs map[string]*entity.WorkflowDefinition
	err  error
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{defs: make(map[string]*entity.WorkflowDefinition)}
}

func (r *fakeWorkflowRepo) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	if r.err != nil {
		return r.err
	}
	r.defs[def.ID] = def
	return nil
}

func (r *fakeWorkflowRepo) GetByID(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	return r.defs[id], r.err
}

func (r *fakeWorkflowRepo) GetActiveByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, d := range r.defs {
		if d.EntityType == entityType && d.Active {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeWorkflowRepo) Update(ctx context.Context, def *entity.WorkflowDefinition) error {
	r.defs[def.ID] = def
	return r.err
}

func (r *fakeWorkflowRepo) SetActive(ctx context.Context, id string, active bool) error {
	if d, ok := r.defs[id]; ok {
		d.Active = active
	}
	return r.err
}

func (r *fakeWorkflowRepo) DeactivateByEntityType(ctx context.Context, entityType string) error {
	for _, d := range r.defs {
		if d.EntityType == entityType {
			d.Active = false
		}
	}
	return r.err
}

func (r *fakeWorkflowRepo) List(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	var out []*entity.WorkflowDefinition
	for _, d := range r.defs {
		if entityType == "" || d.EntityType == entityType {
			out = append(out, d)
		}
	}
	return out, r.err
}

type fakeInstanceRepo struct {
	instances map[string]*entity.ApprovalInstance
	// staleOnce makes the next UpdateState fail with ErrConflict
	staleOnce bool
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]*entity.ApprovalInstance)}
}

func (r *fakeInstanceRepo) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	clone := *instance
	r.instances[instance.ID] = &clone
	return nil
}

func (r *fakeInstanceRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error) {
	if inst, ok := r.instances[id]; ok {
		clone := *inst
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeInstanceRepo) GetByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalInstance, error) {
	for _, inst := range r.instances {
		if inst.EntityType == entityType && inst.EntityID == entityID {
			clone := *inst
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeInstanceRepo) UpdateState(ctx context.Context, instance *entity.ApprovalInstance) error {
	if r.staleOnce {
		r.staleOnce = false
		return approval.ErrConflict
	}
	stored, ok := r.instances[instance.ID]
	if !ok {
		return approval.ErrNotFound
	}
	if stored.Version != instance.Version {
		return approval.ErrConflict
	}
	instance.Version++
	clone := *instance
	r.instances[instance.ID] = &clone
	return nil
}

func (r *fakeInstanceRepo) List(ctx context.Context, status string, limit, offset int) ([]*entity.ApprovalInstance, error) {
	var out []*entity.ApprovalInstance
	for _, inst := range r.instances {
		if status == "" || inst.OverallStatus == status {
			clone := *inst
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

type fakeStepRepo struct {
	steps []*entity.ApprovalStep
}

func (r *fakeStepRepo) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	for _, s := range steps {
		clone := *s
		r.steps = append(r.steps, &clone)
	}
	return nil
}

func (r *fakeStepRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalStep, error) {
	for _, s := range r.steps {
		if s.ID == id {
			clone := *s
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeStepRepo) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.ApprovalStep, error) {
	var out []*entity.ApprovalStep
	for _, s := range r.steps {
		if s.InstanceID == instanceID {
			clone := *s
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

func (r *fakeStepRepo) RecordDecision(ctx context.Context, step *entity.ApprovalStep) error {
	for i, s := range r.steps {
		if s.ID == step.ID {
			clone := *step
			r.steps[i] = &clone
			return nil
		}
	}
	return approval.ErrNotFound
}

func (r *fakeStepRepo) ListPendingForRole(ctx context.Context, role, entityType string, limit, offset int) ([]*entity.PendingStepView, error) {
	var out []*entity.PendingStepView
	for _, s := range r.steps {
		if s.Status == entity.StepStatusPending && (role == "" || s.RequiredRole == role) {
			out = append(out, &entity.PendingStepView{
				StepID:     s.ID,
				InstanceID: s.InstanceID,
				StepNumber: s.StepNumber,
				StepName:   s.Name,
			})
		}
	}
	return out, nil
}

func (r *fakeStepRepo) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.ApprovalStep, error) {
	var out []*entity.ApprovalStep
	for _, s := range r.steps {
		if s.Status == entity.StepStatusPending && s.EscalatedAt == nil && s.DueDate != nil && s.DueDate.Before(asOf) {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeStepRepo) MarkEscalated(ctx context.Context, id string, at time.Time) error {
	for _, s := range r.steps {
		if s.ID == id {
			t := at
			s.EscalatedAt = &t
			return nil
		}
	}
	return approval.ErrNotFound
}

type fakeBudgetRepo struct {
	items map[string]*entity.BudgetItem
}

func newFakeBudgetRepo() *fakeBudgetRepo {
	return &fakeBudgetRepo{items: make(map[string]*entity.BudgetItem)}
}

func (r *fakeBudgetRepo) Create(ctx context.Context, item *entity.BudgetItem) error {
	r.items[item.ID] = item
	return nil
}

func (r *fakeBudgetRepo) GetByID(ctx context.Context, id string) (*entity.BudgetItem, error) {
	return r.items[id], nil
}

func (r *fakeBudgetRepo) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*entity.BudgetItem, error) {
	var out []*entity.BudgetItem
	for _, i := range r.items {
		if i.ProjectID == projectID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *fakeBudgetRepo) SetSubmitted(ctx context.Context, id, instanceID string) error {
	item, ok := r.items[id]
	if !ok {
		return approval.ErrNotFound
	}
	item.ApprovalStatus = entity.ApprovalStatusPending
	item.ApprovalInstanceID = instanceID
	return nil
}

func (r *fakeBudgetRepo) ApplyDecision(ctx context.Context, id, status string, approvedAmount *float64, approvedBy string, approvedAt *time.Time) error {
	item, ok := r.items[id]
	if !ok {
		return approval.ErrNotFound
	}
	item.ApprovalStatus = status
	item.ApprovedAmount = approvedAmount
	item.ApprovedBy = approvedBy
	item.ApprovedAt = approvedAt
	return nil
}

type fakeUserRepo struct {
	users map[string]*entity.User
}

func newFakeUserRepo(users ...*entity.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range r.users {
		if u.Role == role && u.Active {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// captureDispatcher records events; async dispatch is synchronous here
// so tests can assert immediately
type captureDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *captureDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (d *captureDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.record(evt)
	return nil
}

func (d *captureDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.record(evt)
}

func (d *captureDispatcher) Close() error { return nil }

func (d *captureDispatcher) record(evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *captureDispatcher) typesSeen() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Type, len(d.events))
	for i, e := range d.events {
		out[i] = e.Type
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
