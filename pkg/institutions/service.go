package institutions

import (
	"context"
	"database/sql"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/store"
)

// Service is the institution repository surface
type Service interface {
	CreateInstitution(ctx context.Context, inst *Institution) error
	GetInstitution(ctx context.Context, id int64) (*Institution, error)
	ListInstitutions(ctx context.Context) ([]*Institution, error)
	UpdateInstitution(ctx context.Context, inst *Institution) error
	DeleteInstitution(ctx context.Context, id int64) error

	ListMembers(ctx context.Context, institutionID int64, role auth.Role) ([]*Member, error)

	CreateAssignment(ctx context.Context, assignment *Assignment) error
	ListAssignments(ctx context.Context, institutionID int64) ([]*Assignment, error)
	DeleteAssignment(ctx context.Context, id, institutionID int64) error
}

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateInstitution creates a new institution
func (s *PostgresService) CreateInstitution(ctx context.Context, inst *Institution) error {
	inst.IsActive = true

	query := `
		INSERT INTO institutions (name, description, contact_email, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, inst.Name, inst.Description, inst.ContactEmail, inst.IsActive).
		Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return store.Classify("institutions.Create", err)
	}
	return nil
}

// GetInstitution retrieves an institution by ID
func (s *PostgresService) GetInstitution(ctx context.Context, id int64) (*Institution, error) {
	query := `
		SELECT id, name, description, contact_email, is_active, created_at, updated_at
		FROM institutions
		WHERE id = $1
	`
	inst := &Institution{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inst.ID, &inst.Name, &inst.Description, &inst.ContactEmail,
		&inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, store.Classify("institutions.Get", err)
	}
	return inst, nil
}

// ListInstitutions lists all active institutions
func (s *PostgresService) ListInstitutions(ctx context.Context) ([]*Institution, error) {
	query := `
		SELECT id, name, description, contact_email, is_active, created_at, updated_at
		FROM institutions
		WHERE is_active = true
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, store.Classify("institutions.List", err)
	}
	defer rows.Close()

	var institutions []*Institution
	for rows.Next() {
		inst := &Institution{}
		if err := rows.Scan(
			&inst.ID, &inst.Name, &inst.Description, &inst.ContactEmail,
			&inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt,
		); err != nil {
			return nil, store.Classify("institutions.List", err)
		}
		institutions = append(institutions, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("institutions.List", err)
	}
	return institutions, nil
}

// UpdateInstitution updates an institution's editable fields
func (s *PostgresService) UpdateInstitution(ctx context.Context, inst *Institution) error {
	query := `
		UPDATE institutions
		SET name = $1, description = $2, contact_email = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		inst.Name, inst.Description, inst.ContactEmail, inst.IsActive, inst.ID,
	).Scan(&inst.UpdatedAt)
	if err != nil {
		return store.Classify("institutions.Update", err)
	}
	return nil
}

// DeleteInstitution removes an institution
func (s *PostgresService) DeleteInstitution(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM institutions WHERE id = $1`, id)
	if err != nil {
		return store.Classify("institutions.Delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("institutions.Delete", err)
	}
	if affected == 0 {
		return store.NewError("institutions.Delete", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}

// ListMembers lists an institution's members, optionally filtered by role
func (s *PostgresService) ListMembers(ctx context.Context, institutionID int64, role auth.Role) ([]*Member, error) {
	query := `
		SELECT id, email, full_name, role, institution_id, is_active, created_at
		FROM profiles
		WHERE institution_id = $1
	`
	args := []interface{}{institutionID}
	if role != "" {
		query += ` AND role = $2`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify("institutions.ListMembers", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(
			&m.ID, &m.Email, &m.FullName, &m.Role, &m.InstitutionID,
			&m.IsActive, &m.CreatedAt,
		); err != nil {
			return nil, store.Classify("institutions.ListMembers", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("institutions.ListMembers", err)
	}
	return members, nil
}

// CreateAssignment pairs an arbitrator with a client. A duplicate triple
// surfaces as a conflict from the unique index.
func (s *PostgresService) CreateAssignment(ctx context.Context, assignment *Assignment) error {
	query := `
		INSERT INTO assignments (institution_id, arbitrator_id, client_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		assignment.InstitutionID, assignment.ArbitratorID, assignment.ClientID,
	).Scan(&assignment.ID, &assignment.CreatedAt)
	if err != nil {
		return store.Classify("institutions.CreateAssignment", err)
	}
	return nil
}

// ListAssignments lists an institution's assignments
func (s *PostgresService) ListAssignments(ctx context.Context, institutionID int64) ([]*Assignment, error) {
	query := `
		SELECT id, institution_id, arbitrator_id, client_id, created_at
		FROM assignments
		WHERE institution_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, institutionID)
	if err != nil {
		return nil, store.Classify("institutions.ListAssignments", err)
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		a := &Assignment{}
		if err := rows.Scan(&a.ID, &a.InstitutionID, &a.ArbitratorID, &a.ClientID, &a.CreatedAt); err != nil {
			return nil, store.Classify("institutions.ListAssignments", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("institutions.ListAssignments", err)
	}
	return assignments, nil
}

// DeleteAssignment removes an assignment scoped to its institution
func (s *PostgresService) DeleteAssignment(ctx context.Context, id, institutionID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM assignments WHERE id = $1 AND institution_id = $2`, id, institutionID)
	if err != nil {
		return store.Classify("institutions.DeleteAssignment", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("institutions.DeleteAssignment", err)
	}
	if affected == 0 {
		return store.NewError("institutions.DeleteAssignment", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}
