package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arbiterhq/casedesk/pkg/documents"
	"github.com/arbiterhq/casedesk/pkg/httputil"
)

// maxUploadBytes bounds a single document upload
const maxUploadBytes = 64 << 20

// DocumentHandlers handles document upload, listing, signed download,
// and deletion routes
type DocumentHandlers struct {
	manager *documents.Manager
	bucket  string
	logger  *logrus.Logger
}

// NewDocumentHandlers creates the document handlers. bucket is the
// default bucket uploads land in when the request names none.
func NewDocumentHandlers(manager *documents.Manager, bucket string, logger *logrus.Logger) *DocumentHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &DocumentHandlers{
		manager: manager,
		bucket:  bucket,
		logger:  logger,
	}
}

// RegisterRoutes registers document routes
func (h *DocumentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/documents", h.upload).Methods("POST")
	router.HandleFunc("/documents", h.list).Methods("GET")
	router.HandleFunc("/documents/{id}/download", h.signDownload).Methods("GET")
	router.HandleFunc("/documents/{id}", h.remove).Methods("DELETE")
}

func (h *DocumentHandlers) upload(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteValidationError(w, "expected a multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteValidationError(w, "form field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteValidationError(w, "failed to read uploaded file")
		return
	}

	input := documents.UploadInput{
		Bucket:      h.bucket,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}
	if raw := r.FormValue("bucket"); raw != "" {
		input.Bucket = raw
	}
	if raw := r.FormValue("case_id"); raw != "" {
		caseID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "case_id must be an integer")
			return
		}
		input.CaseID = &caseID
	}
	input.InstitutionID = actor.InstitutionID

	doc, err := h.manager.Upload(r.Context(), actor, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"key":         doc.Key,
		"size_bytes":  doc.SizeBytes,
	}).Info("Document uploaded")
	httputil.WriteCreated(w, doc)
}

func (h *DocumentHandlers) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var caseID *int64
	if raw := httputil.QueryString(r, "case_id", ""); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "case_id must be an integer")
			return
		}
		caseID = &parsed
	}

	list, err := h.manager.List(r.Context(), actor, caseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *DocumentHandlers) signDownload(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	signed, err := h.manager.SignDownload(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, signed)
}

func (h *DocumentHandlers) remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.manager.Delete(r.Context(), actor, id); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithField("document_id", id).Info("Document deleted")
	httputil.WriteMessage(w, "document deleted")
}
