package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/user"
	coreUser "github.com/frahmantamala/table-reservation/internal/core/user"
)

type User = userDatamodel.User

// Profile is the caller-facing view of an account.
type Profile struct {
	ID           int64                 `json:"id"`
	Email        string                `json:"email"`
	Name         string                `json:"name"`
	Role         coreUser.Role         `json:"role"`
	Capabilities []coreUser.Capability `json:"capabilities"`
	IsActive     bool                  `json:"is_active"`
	CreatedAt    time.Time             `json:"created_at"`
}

// NewAccount is the input for creating a user. Password is plaintext and is
// hashed before it reaches the store.
type NewAccount struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required"`
	Password string `validate:"required,min=8"`
	Role     string
}

func ProfileOf(u *User) *Profile {
	role := coreUser.Role(u.Role)
	return &Profile{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         role,
		Capabilities: role.Capabilities(),
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}
