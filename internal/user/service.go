package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/common/validation"
	coreUser "github.com/frahmantamala/table-reservation/internal/core/user"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
}

// PasswordHasher is satisfied by the auth service.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

type Service struct {
	repo   Repository
	hasher PasswordHasher
	logger *slog.Logger
}

func NewService(repo Repository, hasher PasswordHasher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		logger: logger,
	}
}

func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ProfileOf(u), nil
}

// Register creates an active account. An empty role means customer.
func (s *Service) Register(ctx context.Context, acc NewAccount) (*User, error) {
	acc.Email = strings.ToLower(strings.TrimSpace(acc.Email))
	if appErr := validation.Struct(&acc); appErr != nil {
		return nil, appErr
	}

	role := coreUser.RoleCustomer
	if acc.Role != "" {
		r, err := coreUser.ParseRole(acc.Role)
		if err != nil {
			return nil, internal.NewValidationFieldError("role", err.Error(), internal.ErrCodeValidationFailed)
		}
		role = r
	}

	hash, err := s.hasher.HashPassword(acc.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	u := &User{
		Email:        acc.Email,
		Name:         acc.Name,
		PasswordHash: hash,
		Role:         string(role),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}
