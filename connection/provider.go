// Package connection defines the provider boundary the query executor
// acquires pooled database connections through, plus a concrete
// implementation backed by pgxpool.
package connection

import (
	"context"

	"github.com/cordal/queryflow/pkg/apierror"
)

// Row is one materialized result row, column name to value.
type Row = map[string]any

// Conn is a single acquired, scoped connection. Query runs the given SQL
// with positional parameters and materializes all rows.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// Provider looks up a pooled connection by database name. The query
// executor never constructs pools itself; it only consumes this interface.
type Provider interface {
	// Acquire returns a scoped connection for databaseName. Callers must
	// call the returned release func exactly once, on every exit path.
	Acquire(ctx context.Context, databaseName string) (conn Conn, release func(), err error)
}

// ErrUnknownDatabase is returned (wrapped in an *apierror.Error of kind
// NotFound) when Acquire is asked for a database name that was never registered.
func ErrUnknownDatabase(databaseName string) error {
	return apierror.NotFoundf("unknown database %q", databaseName)
}
