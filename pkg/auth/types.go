package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the role of a principal within the service
type Role string

const (
	RoleAdmin       Role = "admin"       // Platform administrator
	RoleInstitution Role = "institution" // Institution administrator
	RoleArbitrator  Role = "arbitrator"  // Arbitrator belonging to an institution
	RoleClient      Role = "client"      // Client party belonging to an institution
	RoleUser        Role = "user"        // Default role for unassigned accounts
)

// AllRoles lists every valid role in canonical order
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleInstitution, RoleArbitrator, RoleClient, RoleUser}
}

// NormalizeRole canonicalizes a raw role string to lowercase and validates it.
// An empty string defaults to RoleUser.
func NormalizeRole(raw string) (Role, error) {
	if raw == "" {
		return RoleUser, nil
	}
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleInstitution, RoleArbitrator, RoleClient, RoleUser:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// IsValid reports whether the role is one of the closed set
func (r Role) IsValid() bool {
	_, err := NormalizeRole(string(r))
	return err == nil && r == Role(strings.ToLower(string(r)))
}

// Principal represents an authenticated identity
type Principal struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name,omitempty"`
	Role          Role       `json:"role"`
	InstitutionID *int64     `json:"institution_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// AuthContext holds the resolved principal for a request
type AuthContext struct {
	Principal *Principal
}

// IsAdmin reports whether the principal has the admin role
func (ac *AuthContext) IsAdmin() bool {
	return ac != nil && ac.Principal != nil && ac.Principal.Role == RoleAdmin
}

// InstitutionID returns the principal's institution id, or 0 when unset
func (ac *AuthContext) InstitutionID() int64 {
	if ac == nil || ac.Principal == nil || ac.Principal.InstitutionID == nil {
		return 0
	}
	return *ac.Principal.InstitutionID
}

// CreatableRoles returns the roles a principal with the given role may assign
// when creating users. Admins may create any role; institution administrators
// may only create arbitrators and clients inside their own institution.
func CreatableRoles(actor Role) []Role {
	switch actor {
	case RoleAdmin:
		return AllRoles()
	case RoleInstitution:
		return []Role{RoleArbitrator, RoleClient}
	default:
		return nil
	}
}

// CanCreateRole reports whether actor may create a user with target role
func CanCreateRole(actor, target Role) bool {
	for _, r := range CreatableRoles(actor) {
		if r == target {
			return true
		}
	}
	return false
}
