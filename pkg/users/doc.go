// Package users manages user profiles, the mirrored role table, and the
// multi-step user and role workflows with their compensating and
// best-effort semantics.
package users
