// Package store persists users, chats and command toggles through sqlx.
// Queries use '?' placeholders rebound for the connected driver, so the same
// code serves PostgreSQL and SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
)

// ErrNotFound is returned by lookups that have no default record.
var ErrNotFound = errors.New("store: not found")

// Store is the sqlx-backed persistence layer.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New wraps a connected and migrated database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.STORE.Warn("rollback failed",
					slog.String("operation", op),
					slog.String("err", rbErr.Error()),
				)
			}
		}
	}()
	if err = fn(tx); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return s.fail(ctx, op, err)
	}
	if err = tx.Commit(); err != nil {
		return s.fail(ctx, op, err)
	}
	logger.STORE.Debug("tx committed",
		slog.String("operation", op),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return res, nil
}

// get scans one row into dst. It reports false when no row matched.
func (s *Store) get(ctx context.Context, op string, dst any, query string, args ...any) (bool, error) {
	err := s.db.GetContext(ctx, dst, s.db.Rebind(query), args...)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, s.fail(ctx, op, err)
	}
}

func (s *Store) selectRows(ctx context.Context, op string, dst any, query string, args ...any) error {
	if err := s.db.SelectContext(ctx, dst, s.db.Rebind(query), args...); err != nil {
		return s.fail(ctx, op, err)
	}
	return nil
}

func (s *Store) fail(ctx context.Context, op string, err error) error {
	logger.LogEvent(ctx, logger.STORE, slog.LevelWarn, "store.fail",
		slog.String("operation", op),
		slog.String("err", err.Error()),
	)
	return errs.WrapCode(errs.CodeDatabase, op, err)
}

func txGet(ctx context.Context, tx *sqlx.Tx, dst any, query string, args ...any) (bool, error) {
	err := tx.GetContext(ctx, dst, tx.Rebind(query), args...)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

func txExec(ctx context.Context, tx *sqlx.Tx, query string, args ...any) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	return err
}
