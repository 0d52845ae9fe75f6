// Package audit records administrative events and role-change notification
// rows in PostgreSQL. Writes from workflows are best-effort: callers log
// failures and continue, and a missing table is tolerated so the optional
// tables can be provisioned lazily.
package audit
