package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/contextkeys"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/identity"
	"github.com/arbiterhq/casedesk/pkg/observability"
	"github.com/arbiterhq/casedesk/pkg/store"
	"github.com/arbiterhq/casedesk/pkg/users"
)

// ProfileSource loads the current profile row for an authenticated
// subject. It is the narrow slice of the user repository the middleware
// needs.
type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (*users.Profile, error)
}

// AuthMiddleware authenticates requests with a bearer token and loads
// the principal's current role from the profile store
type AuthMiddleware struct {
	provider identity.Provider
	profiles ProfileSource
	logger   *observability.Logger
	optional bool
}

// NewAuthMiddleware creates the auth middleware. With optional set,
// requests without an Authorization header pass through anonymously.
func NewAuthMiddleware(provider identity.Provider, profiles ProfileSource, logger *observability.Logger, optional bool) *AuthMiddleware {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuthMiddleware{
		provider: provider,
		profiles: profiles,
		logger:   logger,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		ident, err := m.provider.Resolve(r.Context(), parts[1])
		if err != nil {
			if !errors.Is(err, identity.ErrInvalidToken) {
				m.logger.WithError(err).Warn("Token resolution failed")
			}
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		// The role on the token may be stale. The profile row is the
		// authority, so it is read on every request.
		profile, err := m.profiles.GetProfile(r.Context(), ident.Subject)
		if err != nil {
			if store.IsNotFound(err) {
				httputil.WriteUnauthorized(w, "no profile for this identity")
				return
			}
			m.logger.WithError(err).Error("Failed to load profile during authentication")
			httputil.WriteStoreError(w, err)
			return
		}
		if !profile.IsActive {
			httputil.WriteUnauthorized(w, "account is deactivated")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), &auth.AuthContext{Principal: profile.Principal()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests that carry no authenticated principal.
// It guards protected routes behind an optional-mode auth middleware.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.PrincipalFrom(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only principals holding one of the given roles
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := contextkeys.PrincipalFrom(r.Context())
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteForbidden(w, "insufficient role")
		})
	}
}
