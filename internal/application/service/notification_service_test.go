package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangunpro/rab-approval/internal/application/dispatcher"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"github.com/bangunpro/rab-approval/internal/domain/event"
)

// fakeNotificationRepo keeps outbox rows in memory
type fakeNotificationRepo struct {
	rows []*entity.ApprovalNotification
	err  error
}

func (r *fakeNotificationRepo) Create(ctx context.Context, n *entity.ApprovalNotification) error {
	if r.err != nil {
		return r.err
	}
	clone := *n
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalNotification, error) {
	for _, n := range r.rows {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, nil
}

func (r *fakeNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.ApprovalNotification, error) {
	var out []*entity.ApprovalNotification
	for _, n := range r.rows {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) ListPending(ctx context.Context, limit int) ([]*entity.ApprovalNotification, error) {
	var out []*entity.ApprovalNotification
	for _, n := range r.rows {
		if n.Status == entity.NotificationStatusPending {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	for _, n := range r.rows {
		if n.ID == id {
			n.Status = entity.NotificationStatusSent
			t := at
			n.SentAt = &t
		}
	}
	return nil
}

func (r *fakeNotificationRepo) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	for _, n := range r.rows {
		if n.ID == id {
			n.Status = entity.NotificationStatusFailed
			n.ErrorMessage = errorMsg
		}
	}
	return nil
}

func (r *fakeNotificationRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	for _, n := range r.rows {
		if n.ID == id {
			n.Status = entity.NotificationStatusRead
			t := at
			n.ReadAt = &t
		}
	}
	return nil
}

func (r *fakeNotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*entity.ApprovalNotification
	var purged int64
	for _, n := range r.rows {
		if n.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, n)
	}
	r.rows = kept
	return purged, nil
}

func notificationFixture() (*fakeNotificationRepo, *fakeUserRepo, NotificationService, dispatcher.Dispatcher) {
	repo := &fakeNotificationRepo{}
	users := newFakeUserRepo(
		&entity.User{ID: "u-manager-1", Role: "manager", Active: true},
		&entity.User{ID: "u-manager-2", Role: "manager", Active: true},
		&entity.User{ID: "u-manager-gone", Role: "manager", Active: false},
		&entity.User{ID: "u-admin", Role: entity.RoleAdmin, Active: true},
		&entity.User{ID: "u-submitter", Role: "staff", Active: true},
	)
	svc := NewNotificationService(repo, users, nopLogger{})
	d := dispatcher.New()
	svc.Register(d)
	return repo, users, svc, d
}

func TestStepPending_FansOutToActiveRoleHolders(t *testing.T) {
	repo, _, _, d := notificationFixture()

	evt := event.New(event.TypeStepPending, "inst-1", "step-1", map[string]interface{}{
		"step_number":   1,
		"step_name":     "Manager review",
		"required_role": "manager",
		"submitter_id":  "u-submitter",
		"total_amount":  600000000.0,
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))

	require.Len(t, repo.rows, 2, "one row per active manager")
	recipients := map[string]bool{}
	for _, n := range repo.rows {
		recipients[n.RecipientID] = true
		assert.Equal(t, entity.NotificationTypeApprovalRequest, n.Type)
		assert.Equal(t, entity.NotificationStatusPending, n.Status)
		assert.Equal(t, "inst-1", n.InstanceID)
		assert.Equal(t, "step-1", n.StepID)
	}
	assert.True(t, recipients["u-manager-1"])
	assert.True(t, recipients["u-manager-2"])
	assert.False(t, recipients["u-manager-gone"], "inactive users are not notified")
}

func TestInstanceApproved_NotifiesSubmitter(t *testing.T) {
	repo, _, _, d := notificationFixture()

	evt := event.New(event.TypeInstanceApproved, "inst-1", "", map[string]interface{}{
		"submitter_id": "u-submitter",
		"total_amount": 600000000.0,
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))

	require.Len(t, repo.rows, 1)
	assert.Equal(t, "u-submitter", repo.rows[0].RecipientID)
	assert.Equal(t, entity.NotificationTypeCompleted, repo.rows[0].Type)
}

func TestInstanceRejected_NotifiesSubmitterWithReason(t *testing.T) {
	repo, _, _, d := notificationFixture()

	evt := event.New(event.TypeInstanceRejected, "inst-1", "step-1", map[string]interface{}{
		"submitter_id": "u-submitter",
		"step_number":  2,
		"comments":     "over budget",
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))

	require.Len(t, repo.rows, 1)
	assert.Equal(t, entity.NotificationTypeRejected, repo.rows[0].Type)
	assert.Contains(t, repo.rows[0].Message, "over budget")
}

func TestStepEscalated_NotifiesAdmins(t *testing.T) {
	repo, _, _, d := notificationFixture()

	evt := event.New(event.TypeStepEscalated, "inst-1", "step-2", map[string]interface{}{
		"step_number":   2,
		"required_role": "director",
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))

	require.Len(t, repo.rows, 1)
	assert.Equal(t, "u-admin", repo.rows[0].RecipientID)
	assert.Equal(t, entity.NotificationTypeEscalation, repo.rows[0].Type)
}

func TestCreateFailure_DoesNotFailTheEvent(t *testing.T) {
	repo := &fakeNotificationRepo{err: assert.AnError}
	users := newFakeUserRepo(&entity.User{ID: "u-manager-1", Role: "manager", Active: true})
	svc := NewNotificationService(repo, users, nopLogger{})
	d := dispatcher.New()
	svc.Register(d)

	evt := event.New(event.TypeStepPending, "inst-1", "step-1", map[string]interface{}{
		"required_role": "manager",
	})
	// Row creation failures are swallowed: notification is best-effort
	assert.NoError(t, d.Dispatch(context.Background(), evt))
}

func TestMarkRead_OnlyRecipientMayRead(t *testing.T) {
	repo, _, svc, d := notificationFixture()

	evt := event.New(event.TypeInstanceApproved, "inst-1", "", map[string]interface{}{
		"submitter_id": "u-submitter",
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))
	id := repo.rows[0].ID

	err := svc.MarkRead(context.Background(), id, "u-manager-1")
	assert.ErrorIs(t, err, approval.ErrUnauthorized)

	require.NoError(t, svc.MarkRead(context.Background(), id, "u-submitter"))
	assert.Equal(t, entity.NotificationStatusRead, repo.rows[0].Status)
	assert.NotNil(t, repo.rows[0].ReadAt)

	err = svc.MarkRead(context.Background(), "n-missing", "u-submitter")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestPurgeOlderThan_DropsOnlyAgedRows(t *testing.T) {
	repo, _, svc, _ := notificationFixture()

	old := &entity.ApprovalNotification{ID: "n-old", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &entity.ApprovalNotification{ID: "n-fresh", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), old))
	require.NoError(t, repo.Create(context.Background(), fresh))

	purged, err := svc.PurgeOlderThan(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	require.Len(t, repo.rows, 1)
	assert.Equal(t, "n-fresh", repo.rows[0].ID)
}
