package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `INSERT INTO users (id, name, email, role, active) VALUES (?, ?, ?, ?, ?)`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT id, name, email, role, active, created_at FROM users WHERE id = ?`

	var user entity.User
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// ListByRole retrieves all active users holding a role
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	query := `SELECT id, name, email, role, active, created_at FROM users WHERE role = ? AND active = 1 ORDER BY name`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, role)
	if err != nil {
		r.logger.Error("Failed to list users by role", zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var user entity.User
		err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Role,
			&user.Active,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
