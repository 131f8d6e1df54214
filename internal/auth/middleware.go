package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/repository"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// ActiveRoleHeader selects which of the caller's roles a request acts under.
const ActiveRoleHeader = "X-Active-Role"

// Principal represents the authenticated caller.
type Principal struct {
	User       *domain.User
	ActiveRole domain.Role
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.Subject)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return apperrors.NewUnauthorized("user not found")
		}
		return err
	}
	if !user.Active {
		return apperrors.NewUnauthorized("user is inactive")
	}

	role, err := activeRole(user, c.Get(ActiveRoleHeader))
	if err != nil {
		return err
	}

	c.Locals(principalKey, &Principal{User: user, ActiveRole: role})
	return c.Next()
}

// activeRole resolves the header against the user's roles. A single-role user
// may omit the header.
func activeRole(user *domain.User, header string) (domain.Role, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		if len(user.Roles) == 1 {
			return user.Roles[0], nil
		}
		return "", apperrors.NewFieldError(ActiveRoleHeader, "is required for users holding several roles")
	}
	role, ok := domain.ParseRole(strings.ToLower(header))
	if !ok {
		return "", apperrors.NewFieldError(ActiveRoleHeader, "unknown role")
	}
	if !user.HasRole(role) {
		return "", apperrors.NewForbidden("active role is not held by the user")
	}
	return role, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
