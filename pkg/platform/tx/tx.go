// Package tx carries transactional boundaries through context so that several
// stores can take part in the same atomic unit of work.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// Runner executes fn inside one atomic unit. fn receives a context carrying the
// transaction; stores must issue every statement with that context.
// A Runner invoked with a context that already carries a transaction joins it.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Executor is the subset of *sql.DB and *sql.Tx used by stores.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFrom returns the transaction in ctx, or db when none is open.
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a SQL transaction or an in-memory journal.
func InTx(ctx context.Context) bool {
	if _, ok := From(ctx); ok {
		return true
	}
	_, ok := journalFrom(ctx)
	return ok
}
