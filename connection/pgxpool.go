package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cordal/queryflow/pkg/apierror"
)

// DatabaseConfig is one entry of the declarative database registry the
// external configuration loader hands to PgxProvider.
type DatabaseConfig struct {
	Name     string
	DSN      string
	MaxConns int32
	MinConns int32
}

// PgxProvider is a Provider backed by one pgxpool.Pool per registered
// database name. Pools are created lazily on first Acquire and kept for
// the provider's lifetime.
type PgxProvider struct {
	mu      sync.RWMutex
	configs map[string]DatabaseConfig
	pools   map[string]*pgxpool.Pool
}

// NewPgxProvider registers the given database configs without connecting;
// pools are opened lazily on first Acquire.
func NewPgxProvider(configs []DatabaseConfig) *PgxProvider {
	byName := make(map[string]DatabaseConfig, len(configs))
	for _, c := range configs {
		byName[c.Name] = c
	}
	return &PgxProvider{
		configs: byName,
		pools:   make(map[string]*pgxpool.Pool),
	}
}

func (p *PgxProvider) poolFor(ctx context.Context, databaseName string) (*pgxpool.Pool, error) {
	p.mu.RLock()
	pool, ok := p.pools[databaseName]
	p.mu.RUnlock()
	if ok {
		return pool, nil
	}

	cfg, ok := p.configs[databaseName]
	if !ok {
		return nil, ErrUnknownDatabase(databaseName)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[databaseName]; ok {
		return pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, apierror.UnavailableErr(err, "parse DSN for database "+databaseName)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apierror.UnavailableErr(err, "open pool for database "+databaseName)
	}
	p.pools[databaseName] = pool
	return pool, nil
}

// Acquire implements Provider.
func (p *PgxProvider) Acquire(ctx context.Context, databaseName string) (Conn, func(), error) {
	pool, err := p.poolFor(ctx, databaseName)
	if err != nil {
		return nil, func() {}, err
	}

	c, err := pool.Acquire(ctx)
	if err != nil {
		return nil, func() {}, apierror.UnavailableErr(err, "acquire connection for database "+databaseName)
	}
	return &pgxConn{c: c}, c.Release, nil
}

// Shutdown closes every pool. Not part of Provider — called directly at
// process teardown.
func (p *PgxProvider) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pool := range p.pools {
		pool.Close()
	}
}

type pgxConn struct {
	c *pgxpool.Conn
}

func (pc *pgxConn) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := pc.c.Query(ctx, sql, args...)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "query execution failed", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apierror.Wrap(apierror.Internal, "scan row failed", err)
		}
		row := make(Row, len(values))
		for i, v := range values {
			if i < len(names) {
				row[names[i]] = v
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlStateError(err)
	}
	return out, nil
}

func sqlStateError(err error) error {
	e := apierror.Wrap(apierror.Internal, "query execution failed", err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e.SQLState = pgErr.Code
	}
	return e
}
