package store

import (
	"context"
	"database/sql"
)

// stubDB answers reads; a nil func returns no rows and no error.
type stubDB struct {
	getFn    func(ctx context.Context, dest any, query string, args ...any) error
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn == nil {
		return nil
	}
	return s.getFn(ctx, dest, query, args...)
}

func (s stubDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

// stubExecer stands in for the transaction a write joins.
type stubExecer struct {
	execFn func(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s stubExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.execFn == nil {
		return rowsAffected(1), nil
	}
	return s.execFn(ctx, query, args...)
}

// stubTx backs match creation. Row locks, matched checks and the
// RETURNING insert all arrive through getFn.
type stubTx struct {
	stubExecer
	getFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn == nil {
		return nil
	}
	return s.getFn(ctx, dest, query, args...)
}

// rowsAffected is the sql.Result of an upsert that touched n rows.
type rowsAffected int64

func (n rowsAffected) LastInsertId() (int64, error) { return 0, nil }

func (n rowsAffected) RowsAffected() (int64, error) { return int64(n), nil }
