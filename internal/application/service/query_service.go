package service

import (
	"context"
	"fmt"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
)

// QueryService serves the read-only projections: the pending-approval
// worklist for a user and instance listings. No call here mutates state.
type QueryService interface {
	// PendingApprovals returns pending steps of pending instances that the
	// user's role may decide, oldest submission first
	PendingApprovals(ctx context.Context, userID, entityType string, limit, offset int) ([]*entity.PendingStepView, error)

	ListInstances(ctx context.Context, status string, limit, offset int) ([]*entity.ApprovalInstance, error)
}

type queryServiceImpl struct {
	stepRepo     port.StepRepository
	instanceRepo port.InstanceRepository
	userRepo     port.UserRepository
	logger       Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(
	stepRepo port.StepRepository,
	instanceRepo port.InstanceRepository,
	userRepo port.UserRepository,
	logger Logger,
) QueryService {
	return &queryServiceImpl{
		stepRepo:     stepRepo,
		instanceRepo: instanceRepo,
		userRepo:     userRepo,
		logger:       logger,
	}
}

func (s *queryServiceImpl) PendingApprovals(ctx context.Context, userID, entityType string, limit, offset int) ([]*entity.PendingStepView, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, approval.ErrNotFound)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	role := user.Role
	if role == entity.RoleAdmin {
		// Admins see every pending step
		role = ""
	}

	rows, err := s.stepRepo.ListPendingForRole(ctx, role, entityType, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list pending approvals", "error", err, "user_id", userID)
		return nil, err
	}
	return rows, nil
}

func (s *queryServiceImpl) ListInstances(ctx context.Context, status string, limit, offset int) ([]*entity.ApprovalInstance, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.instanceRepo.List(ctx, status, limit, offset)
}
