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

// UserService manages the minimal user directory backing role-based
// recipient resolution and decision authorization.
type UserService interface {
	CreateUser(ctx context.Context, user *entity.User) error
	GetUser(ctx context.Context, id string) (*entity.User, error)
	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
}

type userServiceImpl struct {
	userRepo port.UserRepository
	logger   Logger
}

// NewUserService creates a new UserService
func NewUserService(userRepo port.UserRepository, logger Logger) UserService {
	return &userServiceImpl{
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *userServiceImpl) CreateUser(ctx context.Context, user *entity.User) error {
	if user.Name == "" {
		return fmt.Errorf("name is required")
	}
	if user.Role == "" {
		return fmt.Errorf("role is required")
	}
	if err := utils.ValidateEmail(user.Email); err != nil {
		return err
	}

	user.ID = uuid.NewString()
	user.Name = utils.SanitizeString(user.Name)
	user.Active = true

	if err := s.userRepo.Create(ctx, user); err != nil {
		return err
	}

	s.logger.Info("User created", "user_id", user.ID, "role", user.Role)
	return nil
}

func (s *userServiceImpl) GetUser(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id, approval.ErrNotFound)
	}
	return user, nil
}

func (s *userServiceImpl) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	return s.userRepo.ListByRole(ctx, role)
}
