package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/authz"
	"github.com/arbiterhq/casedesk/pkg/identity"
	"github.com/arbiterhq/casedesk/pkg/observability"
	"github.com/arbiterhq/casedesk/pkg/store"
)

type fakeRepo struct {
	profiles map[string]*Profile
	mirror   map[string]auth.Role

	createProfileErr error
	updateRoleErr    error
	mirrorErr        error
	listMirrorErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles: make(map[string]*Profile),
		mirror:   make(map[string]auth.Role),
	}
}

func (f *fakeRepo) CreateProfile(ctx context.Context, profile *Profile) error {
	if f.createProfileErr != nil {
		return f.createProfileErr
	}
	if profile.Role == "" {
		profile.Role = auth.RoleUser
	}
	profile.IsActive = true
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeRepo) GetProfile(ctx context.Context, id string) (*Profile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return nil, store.NewError("users.GetProfile", store.KindNotFound, errors.New("no rows"))
	}
	return profile, nil
}

func (f *fakeRepo) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	for _, p := range f.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, store.NewError("users.GetProfile", store.KindNotFound, errors.New("no rows"))
}

func (f *fakeRepo) ListProfiles(ctx context.Context, institutionID *int64) ([]*Profile, error) {
	var out []*Profile
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) UpdateProfile(ctx context.Context, profile *Profile) error {
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeRepo) UpdateRole(ctx context.Context, id string, role auth.Role) error {
	if f.updateRoleErr != nil {
		return f.updateRoleErr
	}
	profile, ok := f.profiles[id]
	if !ok {
		return store.NewError("users.UpdateRole", store.KindNotFound, errors.New("no rows"))
	}
	profile.Role = role
	return nil
}

func (f *fakeRepo) DeleteProfile(ctx context.Context, id string) error {
	if _, ok := f.profiles[id]; !ok {
		return store.NewError("users.DeleteProfile", store.KindNotFound, errors.New("no rows"))
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeRepo) TouchLastLogin(ctx context.Context, id string) error { return nil }

func (f *fakeRepo) UpsertMirroredRole(ctx context.Context, userID string, role auth.Role) error {
	if f.mirrorErr != nil {
		return f.mirrorErr
	}
	f.mirror[userID] = role
	return nil
}

func (f *fakeRepo) ListMirroredRoles(ctx context.Context) (map[string]auth.Role, error) {
	if f.listMirrorErr != nil {
		return nil, f.listMirrorErr
	}
	out := make(map[string]auth.Role, len(f.mirror))
	for k, v := range f.mirror {
		out[k] = v
	}
	return out, nil
}

type fakeIdentity struct {
	created   []string
	deleted   []string
	createErr error
	deleteErr error
	nextID    string
}

func (f *fakeIdentity) Resolve(ctx context.Context, rawToken string) (*identity.Identity, error) {
	return nil, identity.ErrInvalidToken
}

func (f *fakeIdentity) AdminCreateUser(ctx context.Context, email, password string) (*identity.Identity, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := f.nextID
	if id == "" {
		id = "identity-" + email
	}
	f.created = append(f.created, id)
	return &identity.Identity{Subject: id, Email: email}, nil
}

func (f *fakeIdentity) AdminDeleteUser(ctx context.Context, subject string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, subject)
	return nil
}

type fakeRecorder struct {
	events        []*audit.Event
	roleChanges   []*audit.RoleChangeNotification
	eventErr      error
	roleChangeErr error
}

func (f *fakeRecorder) RecordEvent(ctx context.Context, event *audit.Event) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRecorder) RecordRoleChange(ctx context.Context, n *audit.RoleChangeNotification) error {
	if f.roleChangeErr != nil {
		return f.roleChangeErr
	}
	f.roleChanges = append(f.roleChanges, n)
	return nil
}

func (f *fakeRecorder) ListRoleChanges(ctx context.Context, userID string, unreadOnly bool) ([]*audit.RoleChangeNotification, error) {
	return f.roleChanges, nil
}

func (f *fakeRecorder) MarkNotificationRead(ctx context.Context, id int64, userID string) error {
	return nil
}

func adminPrincipal() *auth.Principal {
	return &auth.Principal{ID: "admin-1", Role: auth.RoleAdmin, IsActive: true}
}

func institutionPrincipal(id int64) *auth.Principal {
	return &auth.Principal{ID: "inst-1", Role: auth.RoleInstitution, InstitutionID: &id, IsActive: true}
}

func newTestManager(repo *fakeRepo, provider *fakeIdentity, recorder *fakeRecorder) *Manager {
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	var p identity.Provider
	if provider != nil {
		p = provider
	}
	var r audit.Recorder
	if recorder != nil {
		r = recorder
	}
	return NewManager(repo, p, r, nil, logger, nil)
}

func TestCreateUser(t *testing.T) {
	t.Run("creates identity and profile", func(t *testing.T) {
		repo := newFakeRepo()
		provider := &fakeIdentity{nextID: "sub-9"}
		recorder := &fakeRecorder{}
		m := newTestManager(repo, provider, recorder)

		instID := int64(1)
		profile, err := m.CreateUser(context.Background(), adminPrincipal(), CreateUserInput{
			Email:         "a@acme.com",
			Role:          "institution",
			InstitutionID: &instID,
		})
		require.NoError(t, err)

		assert.Equal(t, "sub-9", profile.ID)
		assert.Equal(t, auth.RoleInstitution, profile.Role)
		assert.Equal(t, auth.RoleInstitution, repo.mirror["sub-9"])
		require.Len(t, recorder.events, 1)
		assert.Equal(t, audit.EventUserCreated, recorder.events[0].EventType)
	})

	t.Run("compensates identity on profile failure", func(t *testing.T) {
		repo := newFakeRepo()
		repo.createProfileErr = store.NewError("users.CreateProfile", store.KindUnavailable, errors.New("connection refused"))
		provider := &fakeIdentity{nextID: "sub-9"}
		m := newTestManager(repo, provider, nil)

		_, err := m.CreateUser(context.Background(), adminPrincipal(), CreateUserInput{Email: "a@acme.com"})
		require.Error(t, err)

		// the identity record created in step one must be deleted again
		assert.Equal(t, []string{"sub-9"}, provider.deleted)
		// and the original failure is surfaced, not the compensation's
		assert.Equal(t, store.KindUnavailable, store.KindOf(err))
	})

	t.Run("institution cannot create admins", func(t *testing.T) {
		repo := newFakeRepo()
		instID := int64(1)
		actor := &auth.Principal{ID: "inst-1", Role: auth.RoleInstitution, InstitutionID: &instID}
		m := newTestManager(repo, nil, nil)

		_, err := m.CreateUser(context.Background(), actor, CreateUserInput{
			Email: "x@acme.com", Role: "admin", InstitutionID: &instID,
		})
		assert.True(t, authz.IsDenied(err))
	})

	t.Run("missing email is a validation error", func(t *testing.T) {
		m := newTestManager(newFakeRepo(), nil, nil)
		_, err := m.CreateUser(context.Background(), adminPrincipal(), CreateUserInput{})
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("generates local id without identity provider", func(t *testing.T) {
		repo := newFakeRepo()
		m := newTestManager(repo, nil, nil)

		profile, err := m.CreateUser(context.Background(), adminPrincipal(), CreateUserInput{Email: "b@acme.com"})
		require.NoError(t, err)
		assert.NotEmpty(t, profile.ID)
		assert.Equal(t, auth.RoleUser, profile.Role)
	})
}

func TestUpdateRole(t *testing.T) {
	seed := func(repo *fakeRepo) {
		repo.profiles["user-2"] = &Profile{ID: "user-2", Email: "u@acme.com", Role: auth.RoleUser}
	}

	t.Run("changes role and mirrors it", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo)
		recorder := &fakeRecorder{}
		m := newTestManager(repo, nil, recorder)

		result, err := m.UpdateRole(context.Background(), adminPrincipal(), "user-2", "arbitrator")
		require.NoError(t, err)

		assert.True(t, result.Changed)
		assert.Equal(t, auth.RoleUser, result.PreviousRole)
		assert.Equal(t, auth.RoleArbitrator, result.NewRole)
		assert.Empty(t, result.Warnings)
		assert.Equal(t, auth.RoleArbitrator, repo.profiles["user-2"].Role)
		assert.Equal(t, auth.RoleArbitrator, repo.mirror["user-2"])
		require.Len(t, recorder.roleChanges, 1)
		assert.Equal(t, "admin-1", recorder.roleChanges[0].ChangedBy)
	})

	t.Run("self change is always denied", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["admin-1"] = &Profile{ID: "admin-1", Role: auth.RoleAdmin}
		m := newTestManager(repo, nil, nil)

		_, err := m.UpdateRole(context.Background(), adminPrincipal(), "admin-1", "user")
		assert.True(t, authz.IsDenied(err))
		assert.Equal(t, auth.RoleAdmin, repo.profiles["admin-1"].Role)
	})

	t.Run("non-admin is denied", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo)
		actor := &auth.Principal{ID: "arb-1", Role: auth.RoleArbitrator}
		m := newTestManager(repo, nil, nil)

		_, err := m.UpdateRole(context.Background(), actor, "user-2", "client")
		assert.True(t, authz.IsDenied(err))
	})

	t.Run("same role short-circuits without writes", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo)
		recorder := &fakeRecorder{}
		m := newTestManager(repo, nil, recorder)

		result, err := m.UpdateRole(context.Background(), adminPrincipal(), "user-2", "user")
		require.NoError(t, err)

		assert.False(t, result.Changed)
		assert.Empty(t, repo.mirror)
		assert.Empty(t, recorder.roleChanges)
	})

	t.Run("mirror failure still reports success", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo)
		repo.mirrorErr = errors.New("user_roles does not exist")
		m := newTestManager(repo, nil, nil)

		result, err := m.UpdateRole(context.Background(), adminPrincipal(), "user-2", "client")
		require.NoError(t, err)

		assert.True(t, result.Changed)
		require.NotEmpty(t, result.Warnings)
		assert.Contains(t, result.Warnings[0], "mirror role")
		// the primary profile update went through
		assert.Equal(t, auth.RoleClient, repo.profiles["user-2"].Role)
	})

	t.Run("profile update failure aborts", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo)
		repo.updateRoleErr = store.NewError("users.UpdateRole", store.KindUnavailable, errors.New("connection refused"))
		m := newTestManager(repo, nil, nil)

		_, err := m.UpdateRole(context.Background(), adminPrincipal(), "user-2", "client")
		require.Error(t, err)
		assert.Empty(t, repo.mirror)
	})

	t.Run("unknown target is not found", func(t *testing.T) {
		m := newTestManager(newFakeRepo(), nil, nil)
		_, err := m.UpdateRole(context.Background(), adminPrincipal(), "ghost", "client")
		assert.True(t, store.IsNotFound(err))
	})
}

func TestSyncRoles(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["u-1"] = &Profile{ID: "u-1", Role: auth.RoleArbitrator}
		repo.profiles["u-2"] = &Profile{ID: "u-2", Role: auth.RoleClient}
		m := newTestManager(repo, nil, nil)

		first, err := m.SyncRoles(context.Background(), adminPrincipal())
		require.NoError(t, err)
		assert.Equal(t, 2, first.Synced)
		assert.Equal(t, 0, first.Unchanged)

		second, err := m.SyncRoles(context.Background(), adminPrincipal())
		require.NoError(t, err)
		assert.Equal(t, 0, second.Synced)
		assert.Equal(t, 2, second.Unchanged)
	})

	t.Run("empty role mirrors as user", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["u-1"] = &Profile{ID: "u-1", Role: ""}
		m := newTestManager(repo, nil, nil)

		result, err := m.SyncRoles(context.Background(), adminPrincipal())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, auth.RoleUser, repo.mirror["u-1"])
	})

	t.Run("per-item failures do not abort the batch", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["u-1"] = &Profile{ID: "u-1", Role: auth.RoleClient}
		repo.mirrorErr = errors.New("mirror write failed")
		m := newTestManager(repo, nil, nil)

		result, err := m.SyncRoles(context.Background(), adminPrincipal())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		require.Len(t, result.Items, 1)
		assert.Equal(t, SyncOutcomeFailed, result.Items[0].Outcome)
		assert.NotEmpty(t, result.Items[0].Error)
	})

	t.Run("unreadable mirror syncs every profile", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["u-1"] = &Profile{ID: "u-1", Role: auth.RoleArbitrator}
		repo.mirror["u-1"] = auth.RoleArbitrator
		repo.listMirrorErr = store.NewError("users.ListMirroredRoles", store.KindConstraint, errors.New(`relation "user_roles" does not exist`))
		m := newTestManager(repo, nil, nil)

		result, err := m.SyncRoles(context.Background(), adminPrincipal())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 0, result.Failed)
	})

	t.Run("non-admin is denied", func(t *testing.T) {
		actor := &auth.Principal{ID: "inst-1", Role: auth.RoleInstitution}
		m := newTestManager(newFakeRepo(), nil, nil)

		_, err := m.SyncRoles(context.Background(), actor)
		assert.True(t, authz.IsDenied(err))
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("removes profile and identity", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["user-2"] = &Profile{ID: "user-2", Role: auth.RoleUser}
		provider := &fakeIdentity{}
		m := newTestManager(repo, provider, nil)

		require.NoError(t, m.DeleteUser(context.Background(), adminPrincipal(), "user-2"))
		assert.Empty(t, repo.profiles)
		assert.Equal(t, []string{"user-2"}, provider.deleted)
	})

	t.Run("identity failure does not change the outcome", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["user-2"] = &Profile{ID: "user-2", Role: auth.RoleUser}
		provider := &fakeIdentity{deleteErr: errors.New("provider down")}
		m := newTestManager(repo, provider, nil)

		require.NoError(t, m.DeleteUser(context.Background(), adminPrincipal(), "user-2"))
	})

	t.Run("non-admin is denied with a delete reason", func(t *testing.T) {
		repo := newFakeRepo()
		repo.profiles["user-2"] = &Profile{ID: "user-2", Role: auth.RoleUser}
		m := newTestManager(repo, nil, nil)

		err := m.DeleteUser(context.Background(), institutionPrincipal(1), "user-2")
		require.True(t, authz.IsDenied(err))
		assert.Contains(t, err.Error(), "delete users")
		assert.Len(t, repo.profiles, 1)
	})
}
