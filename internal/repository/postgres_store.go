package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// PostgreSQL error codes that signal a lost race rather than a bad request.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqCheckViolation       = "23514"
	pqUniqueViolation      = "23505"
)

// queries implements the read side against either the pool or a transaction.
type queries struct {
	ext sqlx.ExtContext
}

// PostgresStore persists engine state in PostgreSQL.
type PostgresStore struct {
	queries
	db *sqlx.DB
}

// NewPostgresStore constructs the store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{queries: queries{ext: db}, db: db}
}

// pgTx scopes writes and row locks to one database transaction.
type pgTx struct {
	queries
}

// WithinTx runs fn inside a transaction, committing only when fn succeeds.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateError(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&pgTx{queries: queries{ext: tx}}); err != nil {
		_ = tx.Rollback()
		return translateError(err)
	}
	if err = tx.Commit(); err != nil {
		return translateError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// translateError maps lost races to retryable conflicts and constraint breaches to integrity faults.
// The driver error is looked up through any wrapping a caller added.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStaleWrite) {
		return appErrors.WrapAs(err, appErrors.ErrConcurrencyConflict, "")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return appErrors.WrapAs(err, appErrors.ErrConcurrencyConflict, "")
		case pqCheckViolation:
			return appErrors.WrapAs(err, appErrors.ErrIntegrityFault, "ledger constraint violated")
		case pqUniqueViolation:
			return appErrors.WrapAs(err, appErrors.ErrConflict, "record already exists")
		}
	}
	return err
}
