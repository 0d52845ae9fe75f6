package api

import (
	"errors"
	"net/http"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/authz"
	"github.com/arbiterhq/casedesk/pkg/contextkeys"
	"github.com/arbiterhq/casedesk/pkg/documents"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/users"
)

// writeDomainError maps workflow and store errors onto the response
// taxonomy
func writeDomainError(w http.ResponseWriter, err error) {
	var userValidation *users.ValidationError
	var docValidation *documents.ValidationError
	var denied *authz.DeniedError

	switch {
	case errors.As(err, &userValidation):
		httputil.WriteValidationError(w, userValidation.Message)
	case errors.As(err, &docValidation):
		httputil.WriteValidationError(w, docValidation.Message)
	case errors.As(err, &denied):
		httputil.WriteForbidden(w, denied.Reason)
	default:
		httputil.WriteStoreError(w, err)
	}
}

// requirePrincipal extracts the authenticated principal or writes 401
func requirePrincipal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal := contextkeys.PrincipalFrom(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return principal, true
}
