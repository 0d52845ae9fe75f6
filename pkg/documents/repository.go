package documents

import (
	"context"
	"database/sql"

	"github.com/arbiterhq/casedesk/pkg/store"
)

// Repository is the document metadata storage surface
type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context, caseID *int64, uploadedBy string) ([]*Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateDocument inserts a document metadata row
func (r *PostgresRepository) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (case_id, institution_id, bucket, key, file_name, content_type, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		doc.CaseID, doc.InstitutionID, doc.Bucket, doc.Key,
		doc.FileName, doc.ContentType, doc.SizeBytes, doc.UploadedBy,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return store.Classify("documents.Create", err)
	}
	return nil
}

// GetDocument retrieves a document by ID
func (r *PostgresRepository) GetDocument(ctx context.Context, id int64) (*Document, error) {
	query := `
		SELECT id, case_id, institution_id, bucket, key, file_name, content_type, size_bytes, uploaded_by, created_at
		FROM documents
		WHERE id = $1
	`
	doc := &Document{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.CaseID, &doc.InstitutionID, &doc.Bucket, &doc.Key,
		&doc.FileName, &doc.ContentType, &doc.SizeBytes, &doc.UploadedBy, &doc.CreatedAt,
	)
	if err != nil {
		return nil, store.Classify("documents.Get", err)
	}
	return doc, nil
}

// ListDocuments lists documents, optionally filtered by case or uploader
func (r *PostgresRepository) ListDocuments(ctx context.Context, caseID *int64, uploadedBy string) ([]*Document, error) {
	query := `
		SELECT id, case_id, institution_id, bucket, key, file_name, content_type, size_bytes, uploaded_by, created_at
		FROM documents
		WHERE 1=1
	`
	var args []interface{}
	if caseID != nil {
		args = append(args, *caseID)
		query += ` AND case_id = $1`
	}
	if uploadedBy != "" {
		args = append(args, uploadedBy)
		if len(args) == 1 {
			query += ` AND uploaded_by = $1`
		} else {
			query += ` AND uploaded_by = $2`
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify("documents.List", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(
			&doc.ID, &doc.CaseID, &doc.InstitutionID, &doc.Bucket, &doc.Key,
			&doc.FileName, &doc.ContentType, &doc.SizeBytes, &doc.UploadedBy, &doc.CreatedAt,
		); err != nil {
			return nil, store.Classify("documents.List", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("documents.List", err)
	}
	return docs, nil
}

// DeleteDocument removes a document metadata row
func (r *PostgresRepository) DeleteDocument(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return store.Classify("documents.Delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("documents.Delete", err)
	}
	if affected == 0 {
		return store.NewError("documents.Delete", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}
