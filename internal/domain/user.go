package domain

import "time"

// Role enumerates the hats a user may wear.
type Role string

const (
	RoleRequester     Role = "requester"
	RoleServiceAdmin  Role = "service_admin"
	RoleProviderAdmin Role = "provider_admin"
	RoleTechnician    Role = "technician"
	RoleSuperAdmin    Role = "super_admin"
)

// legacyRoles covers role names stored by older clients.
var legacyRoles = map[string]Role{
	"admin_layanan":  RoleServiceAdmin,
	"admin_penyedia": RoleProviderAdmin,
	"teknisi":        RoleTechnician,
	"pemohon":        RoleRequester,
	"user":           RoleRequester,
}

// ParseRole returns the canonical role for raw, and whether it is known.
func ParseRole(raw string) (Role, bool) {
	if r, ok := legacyRoles[raw]; ok {
		return r, true
	}
	switch r := Role(raw); r {
	case RoleRequester, RoleServiceAdmin, RoleProviderAdmin, RoleTechnician, RoleSuperAdmin:
		return r, true
	}
	return "", false
}

// User is an account that can act on tickets under one of its roles.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Roles        []Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
