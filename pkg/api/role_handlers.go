package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/users"
)

// RoleHandlers handles role updates, batch synchronization, and the
// role change notification feed
type RoleHandlers struct {
	manager  *users.Manager
	recorder audit.Recorder
	logger   *logrus.Logger
}

// NewRoleHandlers creates the role handlers
func NewRoleHandlers(manager *users.Manager, recorder audit.Recorder, logger *logrus.Logger) *RoleHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &RoleHandlers{
		manager:  manager,
		recorder: recorder,
		logger:   logger,
	}
}

// RegisterRoutes registers role routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/{id}/role", h.updateRole).Methods("PUT")
	router.HandleFunc("/roles/sync", h.syncRoles).Methods("POST")
	router.HandleFunc("/notifications", h.listNotifications).Methods("GET")
	router.HandleFunc("/notifications/{id}/read", h.markNotificationRead).Methods("POST")
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *RoleHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.manager.UpdateRole(r.Context(), actor, id, req.Role)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry := h.logger.WithFields(logrus.Fields{
		"user_id": id,
		"role":    result.NewRole,
		"changed": result.Changed,
	})
	if len(result.Warnings) > 0 {
		entry.WithField("warnings", result.Warnings).Warn("Role updated with degraded side effects")
	} else {
		entry.Info("Role updated")
	}
	httputil.WriteData(w, result)
}

func (h *RoleHandlers) syncRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	result, err := h.manager.SyncRoles(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"synced":    result.Synced,
		"unchanged": result.Unchanged,
		"failed":    result.Failed,
	}).Info("Role synchronization completed")
	httputil.WriteData(w, result)
}

func (h *RoleHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	unreadOnly, _ := strconv.ParseBool(httputil.QueryString(r, "unread", "false"))
	list, err := h.recorder.ListRoleChanges(r.Context(), actor.ID, unreadOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *RoleHandlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	// Scoped to the caller: marking another account's notification read
	// comes back as not found
	if err := h.recorder.MarkNotificationRead(r.Context(), id, actor.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteMessage(w, "notification marked read")
}
