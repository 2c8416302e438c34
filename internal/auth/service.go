package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/table-reservation/internal"
	userDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/user"
	"github.com/frahmantamala/table-reservation/internal/core/user"
)

const tokenIssuer = "table-reservation"

// Service is the main auth service with dependencies
type Service struct {
	userRepo       UserRepository
	tokenGenerator TokenGenerator
	bcryptCost     int
	logger         *slog.Logger
}

// NewService creates a new auth service
func NewService(userRepo UserRepository, tokenGen TokenGenerator, cfg internal.SecurityConfig, logger *slog.Logger) *Service {
	cost := cfg.BCryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		bcryptCost:     cost,
		logger:         logger,
	}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(cfg internal.SecurityConfig) *JWTTokenGenerator {
	ttl := cfg.AccessTokenDuration
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTTokenGenerator{
		Secret:         []byte(cfg.JWTSecret),
		AccessTokenTTL: ttl,
		Issuer:         tokenIssuer,
		now:            time.Now,
	}
}

// Authenticate validates credentials and returns an access token. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if internal.IsType(err, internal.ErrorTypeNotFound) {
			return nil, internal.ErrInvalidCredentials
		}
		return nil, internal.NewInternalError("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}

	token, expiresAt, err := s.tokenGenerator.GenerateAccessToken(u)
	if err != nil {
		return nil, internal.NewInternalError("failed to issue token", err)
	}

	s.logger.Info("user logged in", "user_id", u.ID, "role", u.Role)
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User: UserSummary{
			ID:    u.ID,
			Email: u.Email,
			Name:  u.Name,
			Role:  u.Role,
		},
	}, nil
}

// Principal resolves a bearer token to the caller. The role is reloaded from
// the store so demotions and deactivations apply before the token expires.
func (s *Service) Principal(ctx context.Context, token string) (*user.Principal, error) {
	claims, err := s.tokenGenerator.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	u, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if internal.IsType(err, internal.ErrorTypeNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}

	role, err := user.ParseRole(u.Role)
	if err != nil {
		s.logger.Warn("user has unknown role", "user_id", u.ID, "role", u.Role)
		return nil, internal.ErrMissingCapability
	}
	return &user.Principal{ID: u.ID, Email: u.Email, Role: role}, nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(u *userDatamodel.User) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.AccessTokenTTL)

	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, jwt.WithIssuer(j.Issuer), jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID > 0 {
		return claims, nil
	}
	return nil, internal.ErrInvalidToken
}

// WithClock overrides the generator's time source.
func (j *JWTTokenGenerator) WithClock(now func() time.Time) *JWTTokenGenerator {
	j.now = now
	return j
}
