// Package postgres implements the catalog stores on PostgreSQL via pgx.
// Every mutating operation runs inside a single transaction: commit on
// success, rollback on any failure, connection released on every exit path.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// withTx runs fn inside a transaction. The deferred rollback is a no-op
// after a successful commit, so every exit path leaves the connection
// clean before the pool reclaims it.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// scanDecimal parses a numeric column selected as text.
func scanDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	return d, nil
}
