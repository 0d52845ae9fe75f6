package store

import (
	"context"
	"database/sql"
)

// TransactionScope wraps the backing store's best-effort begin/commit/rollback
// remote procedures. The store is not guaranteed to expose them: when the
// first call reports undefined_function the scope becomes a no-op for its
// remaining lifetime. Callers must not assume atomicity from this scope; the
// profile table remains the single source of truth regardless.
type TransactionScope struct {
	db          *sql.DB
	supported   bool
	began       bool
	beginProc   string
	commitProc  string
	rollbackPrc string
}

// NewTransactionScope creates a scope against the store's transaction RPCs
func NewTransactionScope(db *sql.DB) *TransactionScope {
	return &TransactionScope{
		db:          db,
		supported:   true,
		beginProc:   "SELECT begin_transaction()",
		commitProc:  "SELECT commit_transaction()",
		rollbackPrc: "SELECT rollback_transaction()",
	}
}

// Begin issues the begin RPC. Unsupported stores disable the scope silently.
func (s *TransactionScope) Begin(ctx context.Context) {
	if s == nil || s.db == nil || !s.supported {
		return
	}
	if _, err := s.db.ExecContext(ctx, s.beginProc); err != nil {
		s.supported = false
		return
	}
	s.began = true
}

// Commit issues the commit RPC when a begin previously succeeded
func (s *TransactionScope) Commit(ctx context.Context) {
	if s == nil || s.db == nil || !s.began {
		return
	}
	s.db.ExecContext(ctx, s.commitProc)
	s.began = false
}

// Rollback issues the rollback RPC when a begin previously succeeded
func (s *TransactionScope) Rollback(ctx context.Context) {
	if s == nil || s.db == nil || !s.began {
		return
	}
	s.db.ExecContext(ctx, s.rollbackPrc)
	s.began = false
}

// Active reports whether a begin RPC succeeded and is still open
func (s *TransactionScope) Active() bool {
	return s != nil && s.began
}
