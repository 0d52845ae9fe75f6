// Package middleware provides the HTTP middleware chain: bearer token
// authentication with a fresh per-request role lookup, request IDs,
// panic recovery, and rate limiting.
//
// Token claims are never trusted for authorization. The auth middleware
// resolves the token to an identity, then loads the current profile row
// so a role change takes effect on the next request, not at the next
// token refresh.
//
// Rate limiting is Redis-backed so limits hold across instances. When
// Redis is unreachable the limiter falls back to a bounded in-process
// cache rather than failing open entirely.
package middleware
