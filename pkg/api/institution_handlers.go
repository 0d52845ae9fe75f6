package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/authz"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/institutions"
	"github.com/arbiterhq/casedesk/pkg/users"
)

// InstitutionHandlers handles institution, member, and assignment routes
type InstitutionHandlers struct {
	service  institutions.Service
	profiles users.Repository
	logger   *logrus.Logger
}

// NewInstitutionHandlers creates the institution handlers
func NewInstitutionHandlers(service institutions.Service, profiles users.Repository, logger *logrus.Logger) *InstitutionHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &InstitutionHandlers{
		service:  service,
		profiles: profiles,
		logger:   logger,
	}
}

// RegisterRoutes registers institution routes
func (h *InstitutionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/institutions", h.createInstitution).Methods("POST")
	router.HandleFunc("/institutions", h.listInstitutions).Methods("GET")
	router.HandleFunc("/institutions/{id}", h.getInstitution).Methods("GET")
	router.HandleFunc("/institutions/{id}", h.updateInstitution).Methods("PUT")
	router.HandleFunc("/institutions/{id}", h.deleteInstitution).Methods("DELETE")

	router.HandleFunc("/institutions/{id}/members", h.listMembers).Methods("GET")

	router.HandleFunc("/institutions/{id}/assignments", h.createAssignment).Methods("POST")
	router.HandleFunc("/institutions/{id}/assignments", h.listAssignments).Methods("GET")
	router.HandleFunc("/institutions/{id}/assignments/{assignment_id}", h.deleteAssignment).Methods("DELETE")
}

func (h *InstitutionHandlers) createInstitution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := authz.Check(authz.CanMutateInstitution(actor)); err != nil {
		writeDomainError(w, err)
		return
	}

	var inst institutions.Institution
	if !httputil.ParseJSONOrError(w, r, &inst) {
		return
	}
	if !httputil.RequireNonEmpty(w, inst.Name, "name") {
		return
	}

	if err := h.service.CreateInstitution(r.Context(), &inst); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithField("institution_id", inst.ID).Info("Institution created")
	httputil.WriteCreated(w, inst)
}

func (h *InstitutionHandlers) listInstitutions(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	list, err := h.service.ListInstitutions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *InstitutionHandlers) getInstitution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := authz.Check(authz.CanReadInstitution(actor, id)); err != nil {
		writeDomainError(w, err)
		return
	}

	inst, err := h.service.GetInstitution(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, inst)
}

func (h *InstitutionHandlers) updateInstitution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := authz.Check(authz.CanMutateInstitution(actor)); err != nil {
		writeDomainError(w, err)
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var inst institutions.Institution
	if !httputil.ParseJSONOrError(w, r, &inst) {
		return
	}
	inst.ID = id

	if err := h.service.UpdateInstitution(r.Context(), &inst); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, inst)
}

func (h *InstitutionHandlers) deleteInstitution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := authz.Check(authz.CanMutateInstitution(actor)); err != nil {
		writeDomainError(w, err)
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteInstitution(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithField("institution_id", id).Info("Institution deleted")
	httputil.WriteMessage(w, "institution deleted")
}

func (h *InstitutionHandlers) listMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := authz.Check(authz.CanReadInstitution(actor, id)); err != nil {
		writeDomainError(w, err)
		return
	}

	var role auth.Role
	if raw := httputil.QueryString(r, "role", ""); raw != "" {
		parsed, err := auth.NormalizeRole(raw)
		if err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		role = parsed
	}

	members, err := h.service.ListMembers(r.Context(), id, role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, members)
}

type createAssignmentRequest struct {
	ArbitratorID string `json:"arbitrator_id"`
	ClientID     string `json:"client_id"`
}

func (h *InstitutionHandlers) createAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	institutionID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req createAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ArbitratorID, "arbitrator_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ClientID, "client_id") {
		return
	}

	arbitrator, err := h.profiles.GetProfile(r.Context(), req.ArbitratorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	client, err := h.profiles.GetProfile(r.Context(), req.ClientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := authz.Check(authz.CanCreateAssignment(actor, institutionID, arbitrator.Principal(), client.Principal())); err != nil {
		writeDomainError(w, err)
		return
	}

	assignment := &institutions.Assignment{
		InstitutionID: institutionID,
		ArbitratorID:  req.ArbitratorID,
		ClientID:      req.ClientID,
	}
	if err := h.service.CreateAssignment(r.Context(), assignment); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"institution_id": institutionID,
		"arbitrator_id":  req.ArbitratorID,
		"client_id":      req.ClientID,
	}).Info("Assignment created")
	httputil.WriteCreated(w, assignment)
}

func (h *InstitutionHandlers) listAssignments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	institutionID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := authz.Check(authz.CanReadInstitution(actor, institutionID)); err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := h.service.ListAssignments(r.Context(), institutionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *InstitutionHandlers) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	institutionID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := authz.Check(authz.CanReadInstitution(actor, institutionID)); err != nil {
		writeDomainError(w, err)
		return
	}
	assignmentID, ok := httputil.PathInt64OrError(w, r, "assignment_id")
	if !ok {
		return
	}

	if err := h.service.DeleteAssignment(r.Context(), assignmentID, institutionID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteMessage(w, "assignment deleted")
}
