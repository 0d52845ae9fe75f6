package documents

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/authz"
	"github.com/arbiterhq/casedesk/pkg/observability"
	"github.com/arbiterhq/casedesk/pkg/storage"
)

// Manager runs the document workflows on top of the transfer pipeline
type Manager struct {
	repo     Repository
	store    storage.ObjectStore
	pipeline *Pipeline
	audit    audit.Recorder
	logger   *observability.Logger
}

// NewManager wires the document workflow manager. The audit recorder may
// be nil.
func NewManager(repo Repository, objectStore storage.ObjectStore, pipeline *Pipeline, recorder audit.Recorder, logger *observability.Logger) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		repo:     repo,
		store:    objectStore,
		pipeline: pipeline,
		audit:    recorder,
		logger:   logger,
	}
}

// Upload runs the upload workflow: ensure the bucket, write the object
// through the retry/fallback pipeline, then insert the metadata row. The
// metadata insert is critical: on failure the uploaded object is deleted
// again and the insert error is surfaced.
func (m *Manager) Upload(ctx context.Context, actor *auth.Principal, input UploadInput) (*Document, error) {
	if input.FileName == "" {
		return nil, &ValidationError{Message: "file_name is required"}
	}
	if len(input.Content) == 0 {
		return nil, &ValidationError{Message: "file content is required"}
	}
	if input.Bucket == "" {
		return nil, &ValidationError{Message: "bucket is required"}
	}

	if err := m.store.EnsureBucket(ctx, input.Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	key := objectKey(actor.ID, input.FileName)
	if err := m.pipeline.Upload(ctx, input.Bucket, key, input.Content, input.ContentType); err != nil {
		return nil, err
	}

	doc := &Document{
		CaseID:        input.CaseID,
		InstitutionID: input.InstitutionID,
		Bucket:        input.Bucket,
		Key:           key,
		FileName:      input.FileName,
		ContentType:   input.ContentType,
		SizeBytes:     int64(len(input.Content)),
		UploadedBy:    actor.ID,
	}
	if err := m.repo.CreateDocument(ctx, doc); err != nil {
		if delErr := m.store.DeleteObject(ctx, input.Bucket, key); delErr != nil {
			m.logger.WithError(delErr).WithField("key", key).
				Error("Failed to compensate uploaded object after metadata insert failure")
		}
		return nil, err
	}

	m.bestEffortAudit(ctx, &audit.Event{
		EventType: audit.EventDocumentUploaded,
		ActorID:   actor.ID,
		TargetID:  doc.Key,
		Message:   fmt.Sprintf("uploaded %s (%d bytes)", doc.FileName, doc.SizeBytes),
	})
	return doc, nil
}

// SignDownload issues a time-boxed signed URL for a document the actor
// may read
func (m *Manager) SignDownload(ctx context.Context, actor *auth.Principal, documentID int64) (*SignedDownload, error) {
	doc, err := m.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := authz.Check(authz.CanReadDocument(actor, doc.UploadedBy, doc.InstitutionID)); err != nil {
		return nil, err
	}

	return m.pipeline.SignDownload(ctx, doc.Bucket, doc.Key)
}

// Delete removes a document. Only the uploader may delete; the stored
// object goes first, then the metadata row, so a successful delete leaves
// neither behind.
func (m *Manager) Delete(ctx context.Context, actor *auth.Principal, documentID int64) error {
	doc, err := m.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := authz.Check(authz.CanDeleteDocument(actor, doc.UploadedBy)); err != nil {
		return err
	}

	if err := m.store.DeleteObject(ctx, doc.Bucket, doc.Key); err != nil && !storage.IsNotFoundError(err) {
		return fmt.Errorf("failed to delete stored object: %w", err)
	}

	if err := m.repo.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	m.bestEffortAudit(ctx, &audit.Event{
		EventType: audit.EventDocumentDeleted,
		ActorID:   actor.ID,
		TargetID:  doc.Key,
	})
	return nil
}

// List lists documents visible to the actor for a case
func (m *Manager) List(ctx context.Context, actor *auth.Principal, caseID *int64) ([]*Document, error) {
	if actor.Role == auth.RoleAdmin {
		return m.repo.ListDocuments(ctx, caseID, "")
	}
	return m.repo.ListDocuments(ctx, caseID, actor.ID)
}

func (m *Manager) bestEffortAudit(ctx context.Context, event *audit.Event) {
	if m.audit == nil {
		return
	}
	if err := m.audit.RecordEvent(ctx, event); err != nil {
		m.logger.WithError(err).Warn("Failed to record document audit event")
	}
}

// objectKey namespaces stored objects per uploader with a random suffix
// so repeated uploads of one file name never collide
func objectKey(userID, fileName string) string {
	ext := path.Ext(fileName)
	return fmt.Sprintf("%s/%d-%s%s", userID, time.Now().UTC().Unix(), uuid.NewString(), ext)
}
