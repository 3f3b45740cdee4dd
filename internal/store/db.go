package store

import (
	"context"
	"database/sql"
)

// Execer runs a write. Every write in this package takes one so the caller
// decides which transaction it joins.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// DB is the pool handle the stores read through. *sqlx.DB satisfies it.
type DB interface {
	Getter
	Selecter
}

// Tx is the transaction handle match creation runs in.
type Tx interface {
	Execer
	Getter
}
