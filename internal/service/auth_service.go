package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/repository"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

// AuthService coordinates account creation and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	cfg        config.AuthConfig
	logger     *zap.Logger
	validate   *validator.Validate
}

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Name     string   `json:"name" validate:"required"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,required"`
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		cfg:        cfg,
		logger:     logger,
		validate:   validator.New(),
	}
}

// Login authenticates a user by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, "", time.Time{}, apperrors.NewValidationError("email and password required", nil)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	ok, err := auth.PasswordMatches(user.PasswordHash, password)
	if err != nil {
		s.logger.Warn("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
	}
	if !ok {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("user is inactive")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return user, token, exp, nil
}

// CreateUser registers an account with the given roles.
func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return nil, userValidationError(err)
	}

	roles := make([]domain.Role, 0, len(in.Roles))
	seen := make(map[domain.Role]bool, len(in.Roles))
	for _, raw := range in.Roles {
		role, ok := domain.ParseRole(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			return nil, apperrors.NewFieldError("roles", "unknown role "+raw)
		}
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Roles:        roles,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.Strings("roles", roleNames(roles)))
	return user, nil
}

// EnsureBootstrapAdmin creates the configured super admin once. It reports
// whether an account was created.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context) (bool, error) {
	if s.cfg.BootstrapEmail == "" {
		return false, nil
	}
	_, err := s.users.GetByEmail(ctx, s.cfg.BootstrapEmail)
	if err == nil {
		return false, nil
	}
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		return false, err
	}
	_, err = s.CreateUser(ctx, CreateUserInput{
		Name:     s.cfg.BootstrapName,
		Email:    s.cfg.BootstrapEmail,
		Password: s.cfg.BootstrapPassword,
		Roles:    []string{string(domain.RoleSuperAdmin)},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func userValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = "failed " + fe.Tag()
	}
	return apperrors.NewValidationError("invalid user", details)
}

func roleNames(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
