package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arbiterhq/casedesk/pkg/authz"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/storage"
)

// StorageHandlers handles administrative bucket routes
type StorageHandlers struct {
	store  storage.ObjectStore
	logger *logrus.Logger
}

// NewStorageHandlers creates the storage handlers
func NewStorageHandlers(store storage.ObjectStore, logger *logrus.Logger) *StorageHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &StorageHandlers{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers storage routes
func (h *StorageHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/storage/buckets", h.listBuckets).Methods("GET")
	router.HandleFunc("/storage/buckets", h.createBucket).Methods("POST")
}

func (h *StorageHandlers) listBuckets(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := authz.Check(authz.CanManageBuckets(actor)); err != nil {
		writeDomainError(w, err)
		return
	}

	buckets, err := h.store.ListBuckets(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list buckets")
		return
	}
	httputil.WriteData(w, buckets)
}

type createBucketRequest struct {
	Name string `json:"name"`
}

func (h *StorageHandlers) createBucket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := authz.Check(authz.CanManageBuckets(actor)); err != nil {
		writeDomainError(w, err)
		return
	}

	var req createBucketRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	if err := h.store.EnsureBucket(r.Context(), req.Name); err != nil {
		h.logger.WithError(err).WithField("bucket", req.Name).Error("Failed to create bucket")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create bucket")
		return
	}

	h.logger.WithField("bucket", req.Name).Info("Bucket created")
	httputil.WriteCreated(w, map[string]string{"name": req.Name})
}
