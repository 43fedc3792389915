package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bangunpro/rab-approval/internal/application/dispatcher"
	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"github.com/bangunpro/rab-approval/internal/domain/event"
)

// NotificationService subscribes to approval domain events and turns
// each one into notification outbox rows, one per resolved recipient.
// Delivery is somebody else's problem (the delivery worker); a recipient
// that cannot be resolved is logged and skipped, never failing the
// transition that emitted the event.
type NotificationService interface {
	// Register wires the event subscriptions onto the dispatcher
	Register(d dispatcher.Dispatcher)

	ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.ApprovalNotification, error)
	MarkRead(ctx context.Context, notificationID, recipientID string) error

	// PurgeOlderThan deletes notification rows created before now minus age
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	userRepo         port.UserRepository
	logger           Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	userRepo port.UserRepository,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		logger:           logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeStepPending, "notify-approvers", s.onStepPending)
	d.Subscribe(event.TypeDecisionRecorded, "notify-decision", s.onDecisionRecorded)
	d.Subscribe(event.TypeInstanceApproved, "notify-approved", s.onInstanceApproved)
	d.Subscribe(event.TypeInstanceRejected, "notify-rejected", s.onInstanceRejected)
	d.Subscribe(event.TypeStepEscalated, "notify-escalation", s.onStepEscalated)
}

// onStepPending notifies every holder of the step's required role that a
// decision is awaited
func (s *notificationServiceImpl) onStepPending(ctx context.Context, evt *event.Event) error {
	role := evt.PayloadString("required_role")
	recipients, err := s.userRepo.ListByRole(ctx, role)
	if err != nil {
		return fmt.Errorf("resolve role %s: %w", role, err)
	}
	if len(recipients) == 0 {
		s.logger.Error("No recipients for approval request", "role", role, "instance_id", evt.InstanceID)
		return nil
	}

	subject := fmt.Sprintf("Approval needed: step %d (%s)", evt.PayloadInt("step_number"), evt.PayloadString("step_name"))
	message := fmt.Sprintf("A submission of Rp %.0f awaits your decision at step %d.",
		evt.PayloadFloat("total_amount"), evt.PayloadInt("step_number"))

	for _, r := range recipients {
		s.create(ctx, evt, r.ID, entity.NotificationTypeApprovalRequest, subject, message)
	}
	return nil
}

// onDecisionRecorded tells the submitter a decision landed on their instance
func (s *notificationServiceImpl) onDecisionRecorded(ctx context.Context, evt *event.Event) error {
	submitter := evt.PayloadString("submitter_id")
	if submitter == "" {
		return nil
	}

	subject := fmt.Sprintf("Decision recorded on step %d", evt.PayloadInt("step_number"))
	message := fmt.Sprintf("Step %d was decided: %s.", evt.PayloadInt("step_number"), evt.PayloadString("decision"))
	s.create(ctx, evt, submitter, decisionNotificationType(evt.PayloadString("decision")), subject, message)
	return nil
}

func (s *notificationServiceImpl) onInstanceApproved(ctx context.Context, evt *event.Event) error {
	submitter := evt.PayloadString("submitter_id")
	if submitter == "" {
		return nil
	}

	subject := "Approval completed"
	message := fmt.Sprintf("Your submission of Rp %.0f has been fully approved.", evt.PayloadFloat("total_amount"))
	s.create(ctx, evt, submitter, entity.NotificationTypeCompleted, subject, message)
	return nil
}

func (s *notificationServiceImpl) onInstanceRejected(ctx context.Context, evt *event.Event) error {
	submitter := evt.PayloadString("submitter_id")
	if submitter == "" {
		return nil
	}

	subject := "Approval rejected"
	message := "Your submission was rejected."
	if reason := evt.PayloadString("reason"); reason != "" {
		message = fmt.Sprintf("Your submission was rejected: %s.", reason)
	} else if comments := evt.PayloadString("comments"); comments != "" {
		message = fmt.Sprintf("Your submission was rejected at step %d: %s", evt.PayloadInt("step_number"), comments)
	}
	s.create(ctx, evt, submitter, entity.NotificationTypeRejected, subject, message)
	return nil
}

// onStepEscalated alerts administrators about an overdue pending step
func (s *notificationServiceImpl) onStepEscalated(ctx context.Context, evt *event.Event) error {
	admins, err := s.userRepo.ListByRole(ctx, entity.RoleAdmin)
	if err != nil {
		return fmt.Errorf("resolve admins: %w", err)
	}

	subject := fmt.Sprintf("Overdue approval: step %d", evt.PayloadInt("step_number"))
	message := fmt.Sprintf("Step %d (role %s) has passed its due date without a decision.",
		evt.PayloadInt("step_number"), evt.PayloadString("required_role"))

	for _, a := range admins {
		s.create(ctx, evt, a.ID, entity.NotificationTypeEscalation, subject, message)
	}
	return nil
}

// create writes one outbox row; failures are logged and swallowed so one
// bad recipient does not drop the rest of the fan-out
func (s *notificationServiceImpl) create(ctx context.Context, evt *event.Event, recipientID, notifType, subject, message string) {
	n := &entity.ApprovalNotification{
		ID:          uuid.NewString(),
		InstanceID:  evt.InstanceID,
		StepID:      evt.StepID,
		RecipientID: recipientID,
		Type:        notifType,
		Subject:     subject,
		Message:     message,
		Status:      entity.NotificationStatusPending,
		CreatedAt:   time.Now(),
	}

	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.Error("Failed to create notification",
			"error", err,
			"instance_id", evt.InstanceID,
			"recipient_id", recipientID,
			"type", notifType,
		)
		return
	}

	s.logger.Info("Notification queued",
		"notification_id", n.ID,
		"recipient_id", recipientID,
		"type", notifType,
	)
}

func (s *notificationServiceImpl) ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.ApprovalNotification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.notificationRepo.ListByRecipient(ctx, recipientID, limit, offset)
}

// MarkRead marks a notification read; only its recipient may do so
func (s *notificationServiceImpl) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	n, err := s.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("notification %s: %w", notificationID, approval.ErrNotFound)
	}
	if n.RecipientID != recipientID {
		return fmt.Errorf("notification %s belongs to another recipient: %w", notificationID, approval.ErrUnauthorized)
	}
	return s.notificationRepo.MarkRead(ctx, notificationID, time.Now())
}

func (s *notificationServiceImpl) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	purged, err := s.notificationRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("Purged old notifications", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}

func decisionNotificationType(decision string) string {
	if decision == entity.DecisionReject {
		return entity.NotificationTypeRejected
	}
	return entity.NotificationTypeApproved
}
