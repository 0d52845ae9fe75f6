package institutions

import (
	"time"

	"github.com/arbiterhq/casedesk/pkg/auth"
)

// Institution is an arbitration institution
type Institution struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Member is a user profile scoped to an institution listing
type Member struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Role          auth.Role `json:"role"`
	InstitutionID int64     `json:"institution_id"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Assignment pairs an arbitrator with a client inside one institution.
// The (institution, arbitrator, client) triple is unique.
type Assignment struct {
	ID            int64     `json:"id"`
	InstitutionID int64     `json:"institution_id"`
	ArbitratorID  string    `json:"arbitrator_id"`
	ClientID      string    `json:"client_id"`
	CreatedAt     time.Time `json:"created_at"`
}
