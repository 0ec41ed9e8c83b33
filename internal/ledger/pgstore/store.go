// Package pgstore implements ledger.Store on PostgreSQL via database/sql.
//
// Per-account serialization rides on row locks (SELECT ... FOR UPDATE); the
// Busy bound is enforced with SET LOCAL lock_timeout inside each unit.
// Account numbers and transaction references rely on unique constraints with
// retry-on-conflict, never on check-then-generate.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/corebank/ledger/internal/ledger"
)

const allocAttempts = 10

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a PostgreSQL-backed ledger.Store.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds row-lock waits inside atomic units.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the time source used for number generation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a Store on db.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, lockTimeout: 3 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Atomic runs fn inside one database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := dbTx.ExecContext(ctx, timeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(&pgTx{s: s, tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Accounts returns auto-committing account access.
func (s *Store) Accounts() ledger.AccountStore { return &accounts{s: s, q: s.db} }

// Journal returns auto-committing journal access.
func (s *Store) Journal() ledger.Journal { return &journal{s: s, q: s.db} }

// pgTx binds the repositories to one database transaction.
type pgTx struct {
	s  *Store
	tx *sql.Tx
}

func (t *pgTx) Accounts() ledger.AccountStore { return &accounts{s: t.s, q: t.tx, inTx: true} }
func (t *pgTx) Journal() ledger.Journal       { return &journal{s: t.s, q: t.tx, inTx: true} }

// Savepoints isolate each number-allocation attempt inside a unit. A unique
// violation aborts the enclosing transaction; without rolling back to a
// savepoint every later statement would fail with 25P02 and the retry loop
// could never run.
func savepoint(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx, "SAVEPOINT alloc")
	return err
}

func rollbackSavepoint(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT alloc")
	return err
}

func releaseSavepoint(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx, "RELEASE SAVEPOINT alloc")
	return err
}

// isUniqueViolation reports whether err is a unique-constraint conflict on
// the named constraint (any constraint when name is empty).
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// isLockTimeout reports whether err is Postgres "lock not available".
func isLockTimeout(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "55P03"
}
