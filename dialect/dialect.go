// Package dialect provides the database dialect abstraction for loam.
//
// It defines the interfaces and constants used for database-specific
// behavior, allowing loam to support PostgreSQL, MySQL and SQLite backends
// behind a single driver contract.
package dialect

import "context"

// Database dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two database operations loam issues: executing a
// parameterized statement and running a parameterized query.
type ExecQuerier interface {
	// Exec executes a statement that doesn't return rows. For example, in
	// SQL, INSERT or UPDATE. It scans the result into the pointer v. For SQL
	// drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is
	// *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all database operations.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transactional operations.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

// NopTx returns a Tx with a no-op Commit / Rollback operations.
func NopTx(d Driver) Tx {
	return nopTx{d}
}
