package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/authz"
	"github.com/arbiterhq/casedesk/pkg/identity"
	"github.com/arbiterhq/casedesk/pkg/observability"
	"github.com/arbiterhq/casedesk/pkg/store"
)

// Manager runs the multi-step user workflows. Each workflow distinguishes
// critical steps, whose failure aborts and compensates, from best-effort
// steps, whose failure is logged and reported as a warning only.
type Manager struct {
	repo     Repository
	identity identity.Provider
	audit    audit.Recorder
	db       *sql.DB
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewManager wires the user workflow manager. identity, audit recorder and
// metrics may be nil; the corresponding steps degrade to no-ops or local
// fallbacks.
func NewManager(repo Repository, provider identity.Provider, recorder audit.Recorder, db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		repo:     repo,
		identity: provider,
		audit:    recorder,
		db:       db,
		logger:   logger,
		metrics:  metrics,
	}
}

// CreateUser provisions an identity record and its profile row. The profile
// insert is critical: when it fails after the identity record was created,
// the identity record is deleted again and the original error is surfaced.
func (m *Manager) CreateUser(ctx context.Context, actor *auth.Principal, input CreateUserInput) (*Profile, error) {
	if input.Email == "" {
		return nil, &ValidationError{Message: "email is required"}
	}

	role, err := auth.NormalizeRole(input.Role)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	if err := authz.Check(authz.CanCreateUser(actor, role, input.InstitutionID)); err != nil {
		return nil, err
	}

	subject := ""
	identityCreated := false
	if m.identity != nil {
		created, err := m.identity.AdminCreateUser(ctx, input.Email, input.Password)
		switch {
		case err == nil:
			subject = created.Subject
			identityCreated = true
		case errors.Is(err, identity.ErrNotConfigured):
			// no provider attached; the profile ID is generated locally
		default:
			return nil, fmt.Errorf("failed to create identity record: %w", err)
		}
	}
	if subject == "" {
		subject = uuid.NewString()
	}

	profile := &Profile{
		ID:            subject,
		Email:         input.Email,
		FullName:      input.FullName,
		Role:          role,
		InstitutionID: input.InstitutionID,
	}

	if err := m.repo.CreateProfile(ctx, profile); err != nil {
		if identityCreated {
			if delErr := m.identity.AdminDeleteUser(ctx, subject); delErr != nil {
				m.logger.WithError(delErr).WithField("user_id", subject).
					Error("Failed to compensate identity record after profile insert failure")
			}
		}
		m.observeWorkflow("user_create", "error")
		return nil, err
	}

	m.bestEffort(ctx, "mirror role", nil, func() error {
		return m.repo.UpsertMirroredRole(ctx, profile.ID, profile.Role)
	})
	m.bestEffort(ctx, "audit user creation", nil, func() error {
		if m.audit == nil {
			return nil
		}
		return m.audit.RecordEvent(ctx, &audit.Event{
			EventType: audit.EventUserCreated,
			ActorID:   actor.ID,
			TargetID:  profile.ID,
			Message:   fmt.Sprintf("created user with role %s", profile.Role),
		})
	})

	m.observeWorkflow("user_create", "success")
	return profile, nil
}

// UpdateRole changes a user's role. The profile update is the critical
// step; the mirror write, the notification row, the audit event and the
// transaction RPCs are all best-effort and only produce warnings.
func (m *Manager) UpdateRole(ctx context.Context, actor *auth.Principal, userID, rawRole string) (*RoleUpdateResult, error) {
	if err := authz.Check(authz.CanUpdateRole(actor, userID)); err != nil {
		return nil, err
	}

	newRole, err := auth.NormalizeRole(rawRole)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	profile, err := m.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &RoleUpdateResult{
		UserID:       userID,
		PreviousRole: profile.Role,
		NewRole:      newRole,
	}

	if profile.Role == newRole {
		// no-op short-circuit: no writes, no notification
		return result, nil
	}

	scope := m.beginScope(ctx)

	if err := m.repo.UpdateRole(ctx, userID, newRole); err != nil {
		scope.Rollback(ctx)
		m.observeWorkflow("role_update", "error")
		return nil, err
	}
	result.Changed = true

	m.bestEffort(ctx, "mirror role", result, func() error {
		return m.repo.UpsertMirroredRole(ctx, userID, newRole)
	})
	m.bestEffort(ctx, "record role-change notification", result, func() error {
		if m.audit == nil {
			return nil
		}
		return m.audit.RecordRoleChange(ctx, &audit.RoleChangeNotification{
			UserID:       userID,
			PreviousRole: string(profile.Role),
			NewRole:      string(newRole),
			ChangedBy:    actor.ID,
		})
	})
	m.bestEffort(ctx, "audit role update", result, func() error {
		if m.audit == nil {
			return nil
		}
		return m.audit.RecordEvent(ctx, &audit.Event{
			EventType: audit.EventRoleUpdated,
			ActorID:   actor.ID,
			TargetID:  userID,
			Message:   fmt.Sprintf("role changed from %s to %s", profile.Role, newRole),
		})
	})

	scope.Commit(ctx)

	if m.metrics != nil {
		m.metrics.RoleChangesTotal.WithLabelValues(string(profile.Role), string(newRole)).Inc()
	}
	m.observeWorkflow("role_update", "success")
	return result, nil
}

// SyncRoles reconciles the mirror table against the profile roles. The run
// is idempotent: a second run over an already-consistent state reports zero
// synced items. Per-item failures are reported granularly and do not abort
// the batch.
func (m *Manager) SyncRoles(ctx context.Context, actor *auth.Principal) (*SyncResult, error) {
	if err := authz.Check(authz.CanSyncRoles(actor)); err != nil {
		return nil, err
	}

	profiles, err := m.repo.ListProfiles(ctx, nil)
	if err != nil {
		return nil, err
	}

	mirror, err := m.repo.ListMirroredRoles(ctx)
	if err != nil {
		// An unreadable mirror (missing table included) does not abort
		// the batch; every row is treated as out of date and the upserts
		// report their own failures.
		m.logger.WithError(err).Warn("Failed to list mirrored roles, syncing every profile")
		mirror = map[string]auth.Role{}
	}

	result := &SyncResult{Items: make([]SyncItem, 0, len(profiles))}
	for _, profile := range profiles {
		role, err := auth.NormalizeRole(string(profile.Role))
		if err != nil {
			// unknown stored role falls back to the default
			role = auth.RoleUser
		}

		item := SyncItem{UserID: profile.ID, Role: role}
		if mirrored, ok := mirror[profile.ID]; ok && mirrored == role {
			item.Outcome = SyncOutcomeUnchanged
			result.Unchanged++
		} else if err := m.repo.UpsertMirroredRole(ctx, profile.ID, role); err != nil {
			item.Outcome = SyncOutcomeFailed
			item.Error = err.Error()
			result.Failed++
			m.logger.WithError(err).WithField("user_id", profile.ID).
				Warn("Failed to mirror role during sync")
		} else {
			item.Outcome = SyncOutcomeSynced
			result.Synced++
		}
		result.Items = append(result.Items, item)
	}

	m.bestEffort(ctx, "audit role sync", nil, func() error {
		if m.audit == nil {
			return nil
		}
		return m.audit.RecordEvent(ctx, &audit.Event{
			EventType: audit.EventRoleSynced,
			ActorID:   actor.ID,
			Message:   fmt.Sprintf("role sync: %d synced, %d unchanged, %d failed", result.Synced, result.Unchanged, result.Failed),
		})
	})

	m.observeWorkflow("role_sync", "success")
	return result, nil
}

// DeleteUser removes the profile and, best-effort, the identity record
func (m *Manager) DeleteUser(ctx context.Context, actor *auth.Principal, userID string) error {
	if err := authz.Check(authz.CanDeleteUser(actor, userID)); err != nil {
		return err
	}

	if err := m.repo.DeleteProfile(ctx, userID); err != nil {
		return err
	}

	m.bestEffort(ctx, "delete identity record", nil, func() error {
		if m.identity == nil {
			return nil
		}
		if err := m.identity.AdminDeleteUser(ctx, userID); err != nil && !errors.Is(err, identity.ErrNotConfigured) {
			return err
		}
		return nil
	})
	m.bestEffort(ctx, "audit user deletion", nil, func() error {
		if m.audit == nil {
			return nil
		}
		return m.audit.RecordEvent(ctx, &audit.Event{
			EventType: audit.EventUserDeleted,
			ActorID:   actor.ID,
			TargetID:  userID,
		})
	})

	m.observeWorkflow("user_delete", "success")
	return nil
}

// beginScope opens the best-effort transaction scope when a database handle
// is attached. The scope silently disables itself on stores without the
// transaction RPCs, and its methods are nil-safe.
func (m *Manager) beginScope(ctx context.Context) *store.TransactionScope {
	if m.db == nil {
		return nil
	}
	scope := store.NewTransactionScope(m.db)
	scope.Begin(ctx)
	return scope
}

// bestEffort runs a step, logging failure and recording a warning on the
// result when one is attached. It never propagates the error.
func (m *Manager) bestEffort(ctx context.Context, step string, result *RoleUpdateResult, fn func() error) {
	if err := fn(); err != nil {
		m.logger.WithError(err).WithField("step", step).
			Warn("Best-effort workflow step failed")
		if result != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", step, err))
		}
	}
}

func (m *Manager) observeWorkflow(workflow, outcome string) {
	if m.metrics != nil {
		m.metrics.WorkflowOutcomes.WithLabelValues(workflow, outcome).Inc()
	}
}
