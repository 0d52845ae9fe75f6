package users

import (
	"context"
	"database/sql"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/store"
)

// Repository is the profile and mirrored-role storage surface
type Repository interface {
	CreateProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	ListProfiles(ctx context.Context, institutionID *int64) ([]*Profile, error)
	UpdateProfile(ctx context.Context, profile *Profile) error
	UpdateRole(ctx context.Context, id string, role auth.Role) error
	DeleteProfile(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string) error

	UpsertMirroredRole(ctx context.Context, userID string, role auth.Role) error
	ListMirroredRoles(ctx context.Context) (map[string]auth.Role, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateProfile inserts a profile row keyed by the identity subject
func (r *PostgresRepository) CreateProfile(ctx context.Context, profile *Profile) error {
	if profile.Role == "" {
		profile.Role = auth.RoleUser
	}
	profile.IsActive = true

	query := `
		INSERT INTO profiles (id, email, full_name, role, institution_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		profile.ID, profile.Email, profile.FullName, string(profile.Role),
		profile.InstitutionID, profile.IsActive,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return store.Classify("users.CreateProfile", err)
	}
	return nil
}

// GetProfile retrieves a profile by ID
func (r *PostgresRepository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return r.getProfile(ctx, `WHERE id = $1`, id)
}

// GetProfileByEmail retrieves a profile by email
func (r *PostgresRepository) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	return r.getProfile(ctx, `WHERE email = $1`, email)
}

func (r *PostgresRepository) getProfile(ctx context.Context, where string, arg interface{}) (*Profile, error) {
	query := `
		SELECT id, email, full_name, role, institution_id, is_active, created_at, updated_at, last_login_at
		FROM profiles
		` + where

	profile := &Profile{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&profile.ID, &profile.Email, &profile.FullName, &profile.Role,
		&profile.InstitutionID, &profile.IsActive,
		&profile.CreatedAt, &profile.UpdatedAt, &profile.LastLoginAt,
	)
	if err != nil {
		return nil, store.Classify("users.GetProfile", err)
	}
	return profile, nil
}

// ListProfiles lists profiles, optionally scoped to an institution
func (r *PostgresRepository) ListProfiles(ctx context.Context, institutionID *int64) ([]*Profile, error) {
	query := `
		SELECT id, email, full_name, role, institution_id, is_active, created_at, updated_at, last_login_at
		FROM profiles
	`
	var args []interface{}
	if institutionID != nil {
		query += ` WHERE institution_id = $1`
		args = append(args, *institutionID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify("users.ListProfiles", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		profile := &Profile{}
		if err := rows.Scan(
			&profile.ID, &profile.Email, &profile.FullName, &profile.Role,
			&profile.InstitutionID, &profile.IsActive,
			&profile.CreatedAt, &profile.UpdatedAt, &profile.LastLoginAt,
		); err != nil {
			return nil, store.Classify("users.ListProfiles", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("users.ListProfiles", err)
	}
	return profiles, nil
}

// UpdateProfile updates the profile's editable fields, role excluded
func (r *PostgresRepository) UpdateProfile(ctx context.Context, profile *Profile) error {
	query := `
		UPDATE profiles
		SET email = $1, full_name = $2, institution_id = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		profile.Email, profile.FullName, profile.InstitutionID, profile.IsActive, profile.ID,
	).Scan(&profile.UpdatedAt)
	if err != nil {
		return store.Classify("users.UpdateProfile", err)
	}
	return nil
}

// UpdateRole updates only the role column. This is the critical write of
// the role-update workflow.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id string, role auth.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = $1, updated_at = NOW() WHERE id = $2`,
		string(role), id)
	if err != nil {
		return store.Classify("users.UpdateRole", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("users.UpdateRole", err)
	}
	if affected == 0 {
		return store.NewError("users.UpdateRole", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}

// DeleteProfile removes a profile row
func (r *PostgresRepository) DeleteProfile(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return store.Classify("users.DeleteProfile", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("users.DeleteProfile", err)
	}
	if affected == 0 {
		return store.NewError("users.DeleteProfile", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}

// TouchLastLogin stamps the profile's last login time
func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET last_login_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return store.Classify("users.TouchLastLogin", err)
	}
	return nil
}

// UpsertMirroredRole writes the user's canonical role into the mirror table
func (r *PostgresRepository) UpsertMirroredRole(ctx context.Context, userID string, role auth.Role) error {
	query := `
		INSERT INTO user_roles (user_id, role, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, userID, string(role))
	if err != nil {
		return store.Classify("users.UpsertMirroredRole", err)
	}
	return nil
}

// ListMirroredRoles loads the whole mirror table keyed by user
func (r *PostgresRepository) ListMirroredRoles(ctx context.Context) (map[string]auth.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, role FROM user_roles`)
	if err != nil {
		return nil, store.Classify("users.ListMirroredRoles", err)
	}
	defer rows.Close()

	mirror := make(map[string]auth.Role)
	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, store.Classify("users.ListMirroredRoles", err)
		}
		mirror[userID] = auth.Role(role)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("users.ListMirroredRoles", err)
	}
	return mirror, nil
}
