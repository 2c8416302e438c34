package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	userDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/user"
	"github.com/frahmantamala/table-reservation/internal/core/user"
)

// TokenGenerator issues and validates access tokens.
type TokenGenerator interface {
	GenerateAccessToken(u *userDatamodel.User) (token string, expiresAt time.Time, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

// UserRepository is the account lookup auth needs.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
}

// ServiceAPI is what the handler and the auth middleware depend on.
type ServiceAPI interface {
	Authenticate(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Principal(ctx context.Context, token string) (*user.Principal, error)
}

// Claims represents JWT token claims
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	Secret         []byte
	AccessTokenTTL time.Duration
	Issuer         string
	now            func() time.Time
}
