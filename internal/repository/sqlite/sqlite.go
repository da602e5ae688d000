// Package sqlite implements the repository interfaces on an embedded
// SQLite database. It serves single-host deployments and the service tests.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/librosfab/support-service/internal/repository"
)

// NewStore wires the SQLite repositories around db.
func NewStore(db *sql.DB) *repository.Store {
	return &repository.Store{
		Users:   NewUserRepository(db),
		Tickets: NewTicketRepository(db),
		Threads: NewThreadRepository(db),
		Ping:    db.PingContext,
		Close:   func() { _ = db.Close() },
	}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return repository.ErrConflict
	}
	return errors.Wrap(err, op)
}
