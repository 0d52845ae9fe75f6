package cases

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arbiterhq/casedesk/pkg/store"
)

// Service is the case repository surface
type Service interface {
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id int64) (*Case, error)
	ListCases(ctx context.Context, institutionID *int64, status Status) ([]*Case, error)
	UpdateCase(ctx context.Context, c *Case) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	DeleteCase(ctx context.Context, id int64) error
	CountByStatus(ctx context.Context, institutionID *int64) ([]StatusCount, error)
}

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateCase creates a new case in the open state
func (s *PostgresService) CreateCase(ctx context.Context, c *Case) error {
	if c.Status == "" {
		c.Status = StatusOpen
	}

	query := `
		INSERT INTO cases (title, description, status, institution_id, created_by, arbitrator_id, client_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		c.Title, c.Description, string(c.Status), c.InstitutionID, c.CreatedBy,
		c.ArbitratorID, c.ClientID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return store.Classify("cases.Create", err)
	}
	return nil
}

// GetCase retrieves a case by ID
func (s *PostgresService) GetCase(ctx context.Context, id int64) (*Case, error) {
	query := `
		SELECT id, title, description, status, institution_id, created_by, arbitrator_id, client_id, created_at, updated_at
		FROM cases
		WHERE id = $1
	`
	c := &Case{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Title, &c.Description, &c.Status, &c.InstitutionID,
		&c.CreatedBy, &c.ArbitratorID, &c.ClientID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, store.Classify("cases.Get", err)
	}
	return c, nil
}

// ListCases lists cases, optionally scoped to an institution and status
func (s *PostgresService) ListCases(ctx context.Context, institutionID *int64, status Status) ([]*Case, error) {
	query := `
		SELECT id, title, description, status, institution_id, created_by, arbitrator_id, client_id, created_at, updated_at
		FROM cases
		WHERE 1=1
	`
	var args []interface{}
	if institutionID != nil {
		args = append(args, *institutionID)
		query += fmt.Sprintf(` AND institution_id = $%d`, len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify("cases.List", err)
	}
	defer rows.Close()

	var out []*Case
	for rows.Next() {
		c := &Case{}
		if err := rows.Scan(
			&c.ID, &c.Title, &c.Description, &c.Status, &c.InstitutionID,
			&c.CreatedBy, &c.ArbitratorID, &c.ClientID, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, store.Classify("cases.List", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("cases.List", err)
	}
	return out, nil
}

// UpdateCase updates a case's editable fields, status excluded
func (s *PostgresService) UpdateCase(ctx context.Context, c *Case) error {
	query := `
		UPDATE cases
		SET title = $1, description = $2, arbitrator_id = $3, client_id = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		c.Title, c.Description, c.ArbitratorID, c.ClientID, c.ID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return store.Classify("cases.Update", err)
	}
	return nil
}

// UpdateStatus moves a case to a new lifecycle state
func (s *PostgresService) UpdateStatus(ctx context.Context, id int64, status Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE cases SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return store.Classify("cases.UpdateStatus", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("cases.UpdateStatus", err)
	}
	if affected == 0 {
		return store.NewError("cases.UpdateStatus", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}

// DeleteCase removes a case
func (s *PostgresService) DeleteCase(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, id)
	if err != nil {
		return store.Classify("cases.Delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("cases.Delete", err)
	}
	if affected == 0 {
		return store.NewError("cases.Delete", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}

// CountByStatus reports case counts grouped by status
func (s *PostgresService) CountByStatus(ctx context.Context, institutionID *int64) ([]StatusCount, error) {
	query := `SELECT status, COUNT(*) FROM cases`
	var args []interface{}
	if institutionID != nil {
		query += ` WHERE institution_id = $1`
		args = append(args, *institutionID)
	}
	query += ` GROUP BY status ORDER BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify("cases.CountByStatus", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, store.Classify("cases.CountByStatus", err)
		}
		counts = append(counts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("cases.CountByStatus", err)
	}
	return counts, nil
}
