// Package postgres provides a Postgres-backed crawler.TableStore.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "crawl_results"

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// TableStore stores each record as one row holding parallel column and value
// arrays, ordered by position within its resource.
type TableStore struct {
	pool  pool
	table string
}

// NewTableStore connects to Postgres using the provided config.
func NewTableStore(ctx context.Context, cfg Config) (*TableStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewTableStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewTableStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTableStoreWithPool(p pool, table string) (*TableStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TableStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *TableStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *TableStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the results table when it does not exist.
func (s *TableStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	resource text NOT NULL,
	position integer NOT NULL,
	columns text[] NOT NULL,
	vals text[] NOT NULL,
	PRIMARY KEY (resource, position)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Save replaces every row of resource inside one transaction.
func (s *TableStore) Save(ctx context.Context, resource string, rows []crawler.Record) error {
	if resource == "" {
		return fmt.Errorf("resource is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE resource = $1`, s.table), resource); err != nil {
		return rollback(ctx, tx, fmt.Errorf("clear %s: %w", resource, err))
	}
	insert := fmt.Sprintf(`INSERT INTO %s (resource, position, columns, vals) VALUES ($1,$2,$3,$4)`, s.table)
	for i, row := range rows {
		cols := row.Keys()
		vals := make([]string, len(cols))
		for j, c := range cols {
			vals[j] = row.Get(c)
		}
		if _, err := tx.Exec(ctx, insert, resource, i, cols, vals); err != nil {
			return rollback(ctx, tx, fmt.Errorf("insert %s row %d: %w", resource, i, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", resource, err)
	}
	return nil
}

// Load returns the rows of resource in saved order.
func (s *TableStore) Load(ctx context.Context, resource string) ([]crawler.Record, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT columns, vals FROM %s WHERE resource = $1 ORDER BY position`, s.table),
		resource)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", resource, err)
	}
	defer rows.Close()

	out := []crawler.Record{}
	for rows.Next() {
		var cols, vals []string
		if err := rows.Scan(&cols, &vals); err != nil {
			return nil, fmt.Errorf("scan %s: %w", resource, err)
		}
		rec := crawler.NewRecord()
		for i, c := range cols {
			v := ""
			if i < len(vals) {
				v = vals[i]
			}
			rec.Set(c, v)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", resource, err)
	}
	return out, nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}
