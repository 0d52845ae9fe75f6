package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arbiterhq/casedesk/pkg/store"
)

// RoleChangeChannel is the NOTIFY channel carrying role-change payloads
const RoleChangeChannel = "role_changes"

// Recorder is the audit surface used by the workflows
type Recorder interface {
	RecordEvent(ctx context.Context, event *Event) error
	RecordRoleChange(ctx context.Context, notification *RoleChangeNotification) error
	ListRoleChanges(ctx context.Context, userID string, unreadOnly bool) ([]*RoleChangeNotification, error)
	MarkNotificationRead(ctx context.Context, id int64, userID string) error
}

// DBRecorder implements Recorder against PostgreSQL
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a recorder and provisions its tables
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	r := &DBRecorder{db: db}
	if err := r.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit tables: %w", err)
	}
	return r, nil
}

func (r *DBRecorder) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		actor_id VARCHAR(255),
		target_id VARCHAR(255),
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_id);

	CREATE TABLE IF NOT EXISTS role_change_notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		previous_role VARCHAR(50) NOT NULL,
		new_role VARCHAR(50) NOT NULL,
		changed_by VARCHAR(255) NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_role_change_notifications_user ON role_change_notifications(user_id, read);
	`
	_, err := r.db.Exec(query)
	return err
}

// RecordEvent inserts one audit event
func (r *DBRecorder) RecordEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (timestamp, event_type, actor_id, target_id, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.ActorID, event.TargetID,
		event.Message, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return store.Classify("audit.RecordEvent", err)
	}
	return nil
}

// RecordRoleChange inserts a notification row for the affected user and
// raises a NOTIFY so standing listeners pick it up without polling
func (r *DBRecorder) RecordRoleChange(ctx context.Context, n *RoleChangeNotification) error {
	query := `
		INSERT INTO role_change_notifications (user_id, previous_role, new_role, changed_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		n.UserID, n.PreviousRole, n.NewRole, n.ChangedBy,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return store.Classify("audit.RecordRoleChange", err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, RoleChangeChannel, string(payload)); err != nil {
		return store.Classify("audit.RecordRoleChange", err)
	}
	return nil
}

// ListRoleChanges lists a user's role-change notifications
func (r *DBRecorder) ListRoleChanges(ctx context.Context, userID string, unreadOnly bool) ([]*RoleChangeNotification, error) {
	query := `
		SELECT id, user_id, previous_role, new_role, changed_by, read, created_at
		FROM role_change_notifications
		WHERE user_id = $1
	`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, store.Classify("audit.ListRoleChanges", err)
	}
	defer rows.Close()

	var notifications []*RoleChangeNotification
	for rows.Next() {
		n := &RoleChangeNotification{}
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.PreviousRole, &n.NewRole,
			&n.ChangedBy, &n.Read, &n.CreatedAt,
		); err != nil {
			return nil, store.Classify("audit.ListRoleChanges", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify("audit.ListRoleChanges", err)
	}
	return notifications, nil
}

// MarkNotificationRead marks a notification as read, scoped to its owner
func (r *DBRecorder) MarkNotificationRead(ctx context.Context, id int64, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE role_change_notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return store.Classify("audit.MarkNotificationRead", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Classify("audit.MarkNotificationRead", err)
	}
	if affected == 0 {
		return store.NewError("audit.MarkNotificationRead", store.KindNotFound, sql.ErrNoRows)
	}
	return nil
}
