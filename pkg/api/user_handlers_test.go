package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/users"
)

func newUserFixture() (*fakeUserRepo, *fakeAuditRecorder, *users.Manager) {
	repo := newFakeUserRepo()
	recorder := newFakeAuditRecorder()
	manager := users.NewManager(repo, nil, recorder, nil, nil, nil)
	return repo, recorder, manager
}

func TestUserHandlers(t *testing.T) {
	t.Run("admin creates a user with a role", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		router := newTestRouter(adminPrincipal(), NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodPost, "/users", map[string]interface{}{
			"email": "new@example.com",
			"role":  "arbitrator",
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		var profile users.Profile
		decodeData(t, rec, &profile)
		assert.Equal(t, auth.RoleArbitrator, profile.Role)
		assert.Equal(t, "new@example.com", profile.Email)
	})

	t.Run("missing email is a validation error", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		router := newTestRouter(adminPrincipal(), NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodPost, "/users", map[string]interface{}{"role": "client"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("institution creating an admin is forbidden", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		instID := int64(1)
		router := newTestRouter(institutionPrincipal(1), NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodPost, "/users", map[string]interface{}{
			"email":          "boss@example.com",
			"role":           "admin",
			"institution_id": instID,
		})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("client role may not list users", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		actor := &auth.Principal{ID: "c-1", Role: auth.RoleClient, IsActive: true}
		router := newTestRouter(actor, NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodGet, "/users", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("institution listing is scoped to its institution", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		one, two := int64(1), int64(2)
		repo.profiles["a"] = &users.Profile{ID: "a", InstitutionID: &one, Role: auth.RoleClient}
		repo.profiles["b"] = &users.Profile{ID: "b", InstitutionID: &two, Role: auth.RoleClient}
		router := newTestRouter(institutionPrincipal(1), NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodGet, "/users", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var list []*users.Profile
		decodeData(t, rec, &list)
		require.Len(t, list, 1)
		assert.Equal(t, "a", list[0].ID)
	})

	t.Run("me returns the caller's profile", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		repo.profiles["admin-1"] = &users.Profile{ID: "admin-1", Email: "root@example.com", Role: auth.RoleAdmin}
		router := newTestRouter(adminPrincipal(), NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodGet, "/users/me", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var profile users.Profile
		decodeData(t, rec, &profile)
		assert.Equal(t, "root@example.com", profile.Email)
	})

	t.Run("user may not view an unrelated profile", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		repo.profiles["other"] = &users.Profile{ID: "other", Role: auth.RoleClient}
		actor := &auth.Principal{ID: "c-1", Role: auth.RoleClient, IsActive: true}
		router := newTestRouter(actor, NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodGet, "/users/other", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("self-update may not change activation", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		repo.profiles["c-1"] = &users.Profile{ID: "c-1", Role: auth.RoleClient, IsActive: true}
		actor := &auth.Principal{ID: "c-1", Role: auth.RoleClient, IsActive: true}
		router := newTestRouter(actor, NewUserHandlers(manager, repo, nil))

		active := false
		rec := doJSON(t, router, http.MethodPut, "/users/c-1", map[string]interface{}{"is_active": &active})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.True(t, repo.profiles["c-1"].IsActive)
	})

	t.Run("admin deletes a user", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		repo.profiles["gone"] = &users.Profile{ID: "gone", Role: auth.RoleClient}
		router := newTestRouter(adminPrincipal(), NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodDelete, "/users/gone", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, repo.profiles, "gone")
	})

	t.Run("non-admin delete is forbidden", func(t *testing.T) {
		repo, _, manager := newUserFixture()
		repo.profiles["keep"] = &users.Profile{ID: "keep", Role: auth.RoleClient}
		router := newTestRouter(institutionPrincipal(1), NewUserHandlers(manager, repo, nil))

		rec := doJSON(t, router, http.MethodDelete, "/users/keep", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, repo.profiles, "keep")
	})
}
