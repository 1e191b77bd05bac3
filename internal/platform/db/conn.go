package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	// DBConnKey carries the request-scoped database connection.
	DBConnKey contextKey = "db_conn"
	// DBTxKey carries the transaction opened by the tenant scope guard.
	DBTxKey contextKey = "db_tx"
)

// WithConn returns a context carrying the given connection. Repositories
// prefer this connection over the shared pool.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, DBConnKey, conn)
}

// ConnFromContext retrieves the request-scoped connection, or nil.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// WithTx returns a context carrying an open transaction. All repository
// calls made with this context run inside that transaction, which is what
// lets the scope guard roll back every write of a failed operation at once.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// TxFromContext retrieves the transaction opened for the current scope, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}
