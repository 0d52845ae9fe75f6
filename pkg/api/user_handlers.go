package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/users"
)

// UserHandlers handles user account routes
type UserHandlers struct {
	manager  *users.Manager
	profiles users.Repository
	logger   *logrus.Logger
}

// NewUserHandlers creates the user handlers
func NewUserHandlers(manager *users.Manager, profiles users.Repository, logger *logrus.Logger) *UserHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &UserHandlers{
		manager:  manager,
		profiles: profiles,
		logger:   logger,
	}
}

// RegisterRoutes registers user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.createUser).Methods("POST")
	router.HandleFunc("/users", h.listUsers).Methods("GET")
	router.HandleFunc("/users/me", h.getSelf).Methods("GET")
	router.HandleFunc("/users/{id}", h.getUser).Methods("GET")
	router.HandleFunc("/users/{id}", h.updateUser).Methods("PUT")
	router.HandleFunc("/users/{id}", h.deleteUser).Methods("DELETE")
}

type createUserRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FullName      string `json:"full_name"`
	Role          string `json:"role"`
	InstitutionID *int64 `json:"institution_id"`
}

func (h *UserHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	profile, err := h.manager.CreateUser(r.Context(), actor, users.CreateUserInput{
		Email:         req.Email,
		Password:      req.Password,
		FullName:      req.FullName,
		Role:          req.Role,
		InstitutionID: req.InstitutionID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": profile.ID,
		"role":    profile.Role,
	}).Info("User created")
	httputil.WriteCreated(w, profile)
}

func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	// Administrators see everyone; institution accounts see their own
	// institution only
	var institutionID *int64
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleInstitution:
		if actor.InstitutionID == nil {
			httputil.WriteForbidden(w, "account is not attached to an institution")
			return
		}
		institutionID = actor.InstitutionID
	default:
		httputil.WriteForbidden(w, "this role may not list users")
		return
	}

	list, err := h.profiles.ListProfiles(r.Context(), institutionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *UserHandlers) getSelf(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, profile)
}

func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !h.canViewProfile(actor, profile) {
		httputil.WriteForbidden(w, "profile is not visible to this account")
		return
	}
	httputil.WriteData(w, profile)
}

func (h *UserHandlers) canViewProfile(actor *auth.Principal, profile *users.Profile) bool {
	if actor.Role == auth.RoleAdmin || actor.ID == profile.ID {
		return true
	}
	return actor.Role == auth.RoleInstitution &&
		actor.InstitutionID != nil && profile.InstitutionID != nil &&
		*actor.InstitutionID == *profile.InstitutionID
}

type updateUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	IsActive *bool  `json:"is_active"`
}

func (h *UserHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if actor.Role != auth.RoleAdmin && actor.ID != profile.ID {
		httputil.WriteForbidden(w, "only administrators may update other accounts")
		return
	}

	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.FullName != "" {
		profile.FullName = req.FullName
	}
	if req.Email != "" {
		profile.Email = req.Email
	}
	if req.IsActive != nil {
		if actor.Role != auth.RoleAdmin {
			httputil.WriteForbidden(w, "only administrators may activate or deactivate accounts")
			return
		}
		profile.IsActive = *req.IsActive
	}

	if err := h.profiles.UpdateProfile(r.Context(), profile); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteData(w, profile)
}

func (h *UserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	if err := h.manager.DeleteUser(r.Context(), actor, id); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.WithField("user_id", id).Info("User deleted")
	httputil.WriteMessage(w, "user deleted")
}
