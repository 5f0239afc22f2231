package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/cordal/queryflow/pkg/apierror"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgxProvider_AcquireUnknownDatabaseIsNotFound(t *testing.T) {
	p := NewPgxProvider(nil)
	_, release, err := p.Acquire(context.Background(), "missing")
	release()
	if !apierror.Is(err, apierror.NotFound) {
		t.Fatalf("expected NotFound for an unregistered database, got %v", err)
	}
}

func TestNewPgxProvider_LastConfigWinsOnDuplicateName(t *testing.T) {
	p := NewPgxProvider([]DatabaseConfig{
		{Name: "main", DSN: "postgres://a"},
		{Name: "main", DSN: "postgres://b"},
	})
	if p.configs["main"].DSN != "postgres://b" {
		t.Fatalf("expected the later config to win, got %q", p.configs["main"].DSN)
	}
}

func TestSqlStateError_CarriesPgErrorCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	wrapped := sqlStateError(pgErr)

	var ae *apierror.Error
	if !errors.As(wrapped, &ae) {
		t.Fatalf("expected an *apierror.Error, got %T", wrapped)
	}
	if ae.SQLState != "23505" {
		t.Fatalf("expected sqlstate 23505, got %q", ae.SQLState)
	}
}

func TestSqlStateError_NonPgErrorHasNoSQLState(t *testing.T) {
	wrapped := sqlStateError(errors.New("boom"))
	var ae *apierror.Error
	if !errors.As(wrapped, &ae) {
		t.Fatalf("expected an *apierror.Error, got %T", wrapped)
	}
	if ae.SQLState != "" {
		t.Fatalf("expected no sqlstate for a non-pg error, got %q", ae.SQLState)
	}
}

func TestPgxProvider_ShutdownWithNoPoolsIsSafe(t *testing.T) {
	p := NewPgxProvider(nil)
	p.Shutdown()
}
