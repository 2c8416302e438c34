package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	userDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/user"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts u. A taken email surfaces as a conflict.
func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return internal.NewConflictError("email already registered", internal.ErrCodeEmailTaken)
		}
		return err
	}
	return nil
}
