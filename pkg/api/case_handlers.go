package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/authz"
	"github.com/arbiterhq/casedesk/pkg/cases"
	"github.com/arbiterhq/casedesk/pkg/httputil"
)

// CaseHandlers handles arbitration case routes
type CaseHandlers struct {
	service cases.Service
	logger  *logrus.Logger
}

// NewCaseHandlers creates the case handlers
func NewCaseHandlers(service cases.Service, logger *logrus.Logger) *CaseHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &CaseHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers case routes
func (h *CaseHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/cases", h.createCase).Methods("POST")
	router.HandleFunc("/cases", h.listCases).Methods("GET")
	router.HandleFunc("/cases/report", h.statusReport).Methods("GET")
	router.HandleFunc("/cases/{id}", h.getCase).Methods("GET")
	router.HandleFunc("/cases/{id}", h.updateCase).Methods("PUT")
	router.HandleFunc("/cases/{id}/status", h.updateStatus).Methods("PUT")
	router.HandleFunc("/cases/{id}", h.deleteCase).Methods("DELETE")
}

func (h *CaseHandlers) createCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var c cases.Case
	if !httputil.ParseJSONOrError(w, r, &c) {
		return
	}
	if !httputil.RequireNonEmpty(w, c.Title, "title") {
		return
	}
	if c.InstitutionID == 0 {
		if actor.InstitutionID == nil {
			httputil.WriteValidationError(w, "institution_id is required")
			return
		}
		c.InstitutionID = *actor.InstitutionID
	}
	c.CreatedBy = actor.ID

	if err := h.service.CreateCase(r.Context(), &c); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"case_id":        c.ID,
		"institution_id": c.InstitutionID,
	}).Info("Case created")
	httputil.WriteCreated(w, c)
}

func (h *CaseHandlers) listCases(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var status cases.Status
	if raw := httputil.QueryString(r, "status", ""); raw != "" {
		parsed, err := cases.ParseStatus(raw)
		if err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		status = parsed
	}

	// Non-administrators only see their own institution's cases
	var institutionID *int64
	if actor.Role != auth.RoleAdmin {
		if actor.InstitutionID == nil {
			httputil.WriteForbidden(w, "account is not attached to an institution")
			return
		}
		institutionID = actor.InstitutionID
	}

	list, err := h.service.ListCases(r.Context(), institutionID, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *CaseHandlers) getCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	c, err := h.service.GetCase(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := authz.Check(authz.CanReadInstitution(actor, c.InstitutionID)); err != nil && !h.isParticipant(actor, c) {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, c)
}

// isParticipant reports whether the actor is the case's arbitrator,
// client, or creator
func (h *CaseHandlers) isParticipant(actor *auth.Principal, c *cases.Case) bool {
	if actor.ID == c.CreatedBy {
		return true
	}
	if c.ArbitratorID != nil && *c.ArbitratorID == actor.ID {
		return true
	}
	return c.ClientID != nil && *c.ClientID == actor.ID
}

func (h *CaseHandlers) updateCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	existing, err := h.service.GetCase(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := authz.Check(authz.CanReadInstitution(actor, existing.InstitutionID)); err != nil {
		writeDomainError(w, err)
		return
	}

	var c cases.Case
	if !httputil.ParseJSONOrError(w, r, &c) {
		return
	}
	c.ID = id
	c.InstitutionID = existing.InstitutionID

	if err := h.service.UpdateCase(r.Context(), &c); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, c)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *CaseHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := authz.Check(authz.CanUpdateCaseStatus(actor)); err != nil {
		writeDomainError(w, err)
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	status, err := cases.ParseStatus(req.Status)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if err := h.service.UpdateStatus(r.Context(), id, status); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"case_id": id,
		"status":  status,
	}).Info("Case status updated")
	httputil.WriteData(w, map[string]interface{}{"id": id, "status": status})
}

func (h *CaseHandlers) deleteCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	existing, err := h.service.GetCase(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := authz.Check(authz.CanMutateInstitution(actor)); err != nil && actor.ID != existing.CreatedBy {
		writeDomainError(w, err)
		return
	}

	if err := h.service.DeleteCase(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteMessage(w, "case deleted")
}

func (h *CaseHandlers) statusReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var institutionID *int64
	if actor.Role != auth.RoleAdmin {
		if actor.InstitutionID == nil {
			httputil.WriteForbidden(w, "account is not attached to an institution")
			return
		}
		institutionID = actor.InstitutionID
	}

	counts, err := h.service.CountByStatus(r.Context(), institutionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, counts)
}
