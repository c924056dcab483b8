package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DBTxKey carries an open transaction through the request context so that
// repositories participate in it transparently.
const DBTxKey contextKey = "db_tx"

// WithTx begins a transaction on the tenant-scoped connection in ctx and
// returns it together with a derived context that routes repository calls
// through the transaction. The caller owns commit and rollback.
func WithTx(ctx context.Context) (pgx.Tx, context.Context, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return nil, ctx, fmt.Errorf("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, ctx, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, context.WithValue(ctx, DBTxKey, tx), nil
}

// TxFromContext retrieves the active transaction from context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}
