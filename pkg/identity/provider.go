package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when no identity provider is configured
var ErrNotConfigured = errors.New("identity provider is not configured")

// ErrInvalidToken is returned when a bearer token fails verification
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the verified identity behind a bearer token. The Subject is
// the provider-assigned stable identifier and becomes the profile ID.
type Identity struct {
	Subject       string
	Email         string
	FullName      string
	EmailVerified bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Provider verifies tokens and manages identity records
type Provider interface {
	// Resolve verifies a raw bearer token and returns the identity behind
	// it. Verification failures return ErrInvalidToken.
	Resolve(ctx context.Context, rawToken string) (*Identity, error)

	// AdminCreateUser provisions an identity record for a new user.
	// Used by the user-creation workflow before the profile row is written.
	AdminCreateUser(ctx context.Context, email, password string) (*Identity, error)

	// AdminDeleteUser removes an identity record. Used as the compensating
	// step when a later part of the user-creation workflow fails.
	AdminDeleteUser(ctx context.Context, subject string) error
}
