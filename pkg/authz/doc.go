// Package authz implements the authorization guard: one pure predicate per
// resource class, evaluated before every mutation.
//
// A denial is a value (Decision with Allowed=false), not an error. Handlers
// map denials to 403, a missing principal to 401, and an absent resource to
// 404; the three must never be conflated.
package authz
