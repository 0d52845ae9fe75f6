// Package contextkeys centralizes the context keys shared between the
// middleware chain and the handlers, so a key is never re-declared with
// a new typo in a second package.
package contextkeys

import (
	"context"

	"github.com/arbiterhq/casedesk/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains the *auth.AuthContext set by the auth middleware
	AuthKey Key = "auth_context"

	// RequestIDKey contains the request ID string set by the request ID
	// middleware
	RequestIDKey Key = "request_id"
)

// WithAuth stores the resolved auth context on the request context
func WithAuth(ctx context.Context, ac *auth.AuthContext) context.Context {
	return context.WithValue(ctx, AuthKey, ac)
}

// AuthFrom extracts the auth context, or nil when the request was not
// authenticated
func AuthFrom(ctx context.Context) *auth.AuthContext {
	ac, _ := ctx.Value(AuthKey).(*auth.AuthContext)
	return ac
}

// PrincipalFrom extracts the authenticated principal, or nil
func PrincipalFrom(ctx context.Context) *auth.Principal {
	if ac := AuthFrom(ctx); ac != nil {
		return ac.Principal
	}
	return nil
}
