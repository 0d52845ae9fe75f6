package audit

import "time"

// EventType identifies the kind of administrative event
type EventType string

const (
	EventUserCreated        EventType = "user.created"
	EventUserDeleted        EventType = "user.deleted"
	EventRoleUpdated        EventType = "role.updated"
	EventRoleSynced         EventType = "role.synced"
	EventInstitutionCreated EventType = "institution.created"
	EventInstitutionDeleted EventType = "institution.deleted"
	EventDocumentUploaded   EventType = "document.uploaded"
	EventDocumentDeleted    EventType = "document.deleted"
	EventCaseStatusChanged  EventType = "case.status_changed"
)

// Event is one administrative audit record
type Event struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	ActorID   string                 `json:"actor_id"`
	TargetID  string                 `json:"target_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// RoleChangeNotification is a row the realtime listener reacts to.
// One row per applied role change, addressed to the affected user.
type RoleChangeNotification struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	PreviousRole string    `json:"previous_role"`
	NewRole      string    `json:"new_role"`
	ChangedBy    string    `json:"changed_by"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}
