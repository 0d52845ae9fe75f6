package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/cases"
	"github.com/arbiterhq/casedesk/pkg/documents"
	"github.com/arbiterhq/casedesk/pkg/institutions"
	"github.com/arbiterhq/casedesk/pkg/middleware"
	"github.com/arbiterhq/casedesk/pkg/observability"
	"github.com/arbiterhq/casedesk/pkg/storage"
	"github.com/arbiterhq/casedesk/pkg/users"
)

// Dependencies collects everything the server needs. Optional fields
// may be nil; the matching routes or middleware are then skipped.
type Dependencies struct {
	Institutions institutions.Service
	Users        *users.Manager
	Profiles     users.Repository
	Cases        cases.Service
	Documents    *documents.Manager
	ObjectStore  storage.ObjectStore
	Audit        audit.Recorder

	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware

	DefaultBucket string
	Logger        *logrus.Logger
	AppLogger     *observability.Logger
	Metrics       *observability.Metrics
	Health        *observability.HealthChecker
}

// Server is the HTTP API server
type Server struct {
	router *mux.Router
	logger *logrus.Logger
}

// NewServer builds the router and middleware chain
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.AppLogger == nil {
		deps.AppLogger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}
	s.setupRoutes(deps)
	return s
}

func (s *Server) setupRoutes(deps Dependencies) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recovery(deps.AppLogger))
	s.router.Use(middleware.Logging(deps.AppLogger))
	if deps.Metrics != nil {
		s.router.Use(deps.Metrics.HTTPMiddleware(routeTemplate))
	}

	if deps.Health != nil {
		s.router.Handle("/healthz", deps.Health.LivenessHandler()).Methods("GET")
		s.router.Handle("/readyz", deps.Health.ReadinessHandler()).Methods("GET")
	}
	if deps.Metrics != nil {
		s.router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	if deps.Auth != nil {
		api.Use(deps.Auth.Handler)
	}
	if deps.RateLimit != nil {
		api.Use(deps.RateLimit.Handler)
	}

	if deps.Institutions != nil {
		NewInstitutionHandlers(deps.Institutions, deps.Profiles, deps.Logger).RegisterRoutes(api)
	}
	if deps.Users != nil {
		NewUserHandlers(deps.Users, deps.Profiles, deps.Logger).RegisterRoutes(api)
		NewRoleHandlers(deps.Users, deps.Audit, deps.Logger).RegisterRoutes(api)
	}
	if deps.Cases != nil {
		NewCaseHandlers(deps.Cases, deps.Logger).RegisterRoutes(api)
	}
	if deps.Documents != nil {
		NewDocumentHandlers(deps.Documents, deps.DefaultBucket, deps.Logger).RegisterRoutes(api)
	}
	if deps.ObjectStore != nil {
		NewStorageHandlers(deps.ObjectStore, deps.Logger).RegisterRoutes(api)
	}
}

// routeTemplate returns the mux route template so metrics labels stay
// low-cardinality
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is implemented by handler groups that attach routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes attaches an extra handler group to the root router
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
