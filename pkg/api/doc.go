// Package api exposes the case management service over HTTP.
//
// Every route group lives in its own handler struct that registers its
// routes on the shared gorilla/mux router. Responses use the envelope
// from pkg/httputil, and domain errors are translated to a stable
// status taxonomy in error.go: validation failures map to 400, denied
// guards to 403, missing rows to 404, uniqueness collisions to 409, and
// store outages to 503.
package api
