package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/casedesk/pkg/config"
)

func TestNewOIDCProvider_NotConfigured(t *testing.T) {
	_, err := NewOIDCProvider(context.Background(), config.IdentityConfig{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func adminTestProvider(adminURL string) *OIDCProvider {
	return &OIDCProvider{
		cfg: config.IdentityConfig{
			AdminAPIURL:  adminURL,
			ServiceToken: "service-token",
		},
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestAdminCreateUser(t *testing.T) {
	t.Run("creates identity record", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/users", r.URL.Path)
			gotAuth = r.Header.Get("Authorization")

			var req adminUserRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "a@acme.com", req.Email)
			assert.True(t, req.EmailConfirm)

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(adminUserResponse{ID: "sub-123", Email: req.Email})
		}))
		defer srv.Close()

		p := adminTestProvider(srv.URL)
		identity, err := p.AdminCreateUser(context.Background(), "a@acme.com", "secret")
		require.NoError(t, err)

		assert.Equal(t, "sub-123", identity.Subject)
		assert.Equal(t, "a@acme.com", identity.Email)
		assert.Equal(t, "Bearer service-token", gotAuth)
	})

	t.Run("surfaces provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"email already registered"}`, http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		p := adminTestProvider(srv.URL)
		_, err := p.AdminCreateUser(context.Background(), "dup@acme.com", "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
	})

	t.Run("not configured without admin URL", func(t *testing.T) {
		p := adminTestProvider("")
		_, err := p.AdminCreateUser(context.Background(), "a@acme.com", "secret")
		require.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestAdminDeleteUser(t *testing.T) {
	t.Run("deletes identity record", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		p := adminTestProvider(srv.URL)
		require.NoError(t, p.AdminDeleteUser(context.Background(), "sub-123"))
		assert.Equal(t, "/users/sub-123", gotPath)
	})

	t.Run("missing record is not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		p := adminTestProvider(srv.URL)
		require.NoError(t, p.AdminDeleteUser(context.Background(), "gone"))
	})

	t.Run("surfaces provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := adminTestProvider(srv.URL)
		require.Error(t, p.AdminDeleteUser(context.Background(), "sub-123"))
	})
}
