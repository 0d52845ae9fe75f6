package users

import (
	"time"

	"github.com/arbiterhq/casedesk/pkg/auth"
)

// Profile is a user's profile row, the single source of truth for roles
type Profile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name,omitempty"`
	Role          auth.Role  `json:"role"`
	InstitutionID *int64     `json:"institution_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// Principal converts the profile into the request principal
func (p *Profile) Principal() *auth.Principal {
	return &auth.Principal{
		ID:            p.ID,
		Email:         p.Email,
		FullName:      p.FullName,
		Role:          p.Role,
		InstitutionID: p.InstitutionID,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		LastLoginAt:   p.LastLoginAt,
	}
}

// CreateUserInput is the payload for the user-creation workflow
type CreateUserInput struct {
	Email         string `json:"email"`
	Password      string `json:"password,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	Role          string `json:"role,omitempty"`
	InstitutionID *int64 `json:"institution_id,omitempty"`
}

// RoleUpdateResult reports the outcome of a role update. Warnings carry
// best-effort step failures that did not change the outcome.
type RoleUpdateResult struct {
	UserID       string    `json:"user_id"`
	Changed      bool      `json:"changed"`
	PreviousRole auth.Role `json:"previous_role"`
	NewRole      auth.Role `json:"new_role"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// SyncOutcome classifies one item of a role-sync run
type SyncOutcome string

const (
	SyncOutcomeSynced    SyncOutcome = "synced"
	SyncOutcomeUnchanged SyncOutcome = "unchanged"
	SyncOutcomeFailed    SyncOutcome = "failed"
)

// SyncItem is one user's outcome within a role-sync run
type SyncItem struct {
	UserID  string      `json:"user_id"`
	Role    auth.Role   `json:"role"`
	Outcome SyncOutcome `json:"outcome"`
	Error   string      `json:"error,omitempty"`
}

// SyncResult is the granular result of a role-sync run
type SyncResult struct {
	Synced    int        `json:"synced"`
	Unchanged int        `json:"unchanged"`
	Failed    int        `json:"failed"`
	Items     []SyncItem `json:"items"`
}

// ValidationError reports a malformed or missing request field
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
