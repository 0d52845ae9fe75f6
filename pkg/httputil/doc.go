// Package httputil provides the JSON response envelope and request parsing
// helpers shared by all API handlers.
//
// Success responses are {"success": true, "data": ...} or
// {"success": true, "message": ...}; failures are
// {"success": false, "error": ...} with the status code chosen from the
// error taxonomy (401 unauthenticated, 403 forbidden, 404 not found,
// 409 conflict, 400 validation, 500 everything else).
package httputil
