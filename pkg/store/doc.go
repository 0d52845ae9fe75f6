// Package store provides the PostgreSQL connection pool, the repository
// error taxonomy shared by every resource repository, and the best-effort
// transaction scope used by multi-step workflows.
package store
