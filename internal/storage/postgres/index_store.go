// Package postgres provides the Postgres-backed index store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/storage"
)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool used for index rows.
type Config struct {
	DSN             string
	Table           string
	Reset           bool
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// IndexStore writes attribute records into Postgres.
type IndexStore struct {
	pool   execCloser
	table  string
	schema *harvest.Schema
}

var _ harvest.IndexStore = (*IndexStore)(nil)

// NewIndexStore connects to Postgres and prepares the index table.
func NewIndexStore(ctx context.Context, cfg Config, schema *harvest.Schema) (*IndexStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewIndexStoreWithPool(pool, cfg.Table, schema)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx, cfg.Reset); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewIndexStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewIndexStoreWithPool(pool execCloser, table string, schema *harvest.Schema) (*IndexStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	table, err := storage.TableName(table)
	if err != nil {
		return nil, err
	}
	return &IndexStore{pool: pool, table: table, schema: schema}, nil
}

// Migrate creates the index table, dropping it first when reset is set.
func (s *IndexStore) Migrate(ctx context.Context, reset bool) error {
	if reset {
		if _, err := s.pool.Exec(ctx, storage.DropTableSQL(s.table)); err != nil {
			return fmt.Errorf("drop index table: %w", err)
		}
	}
	if _, err := s.pool.Exec(ctx, storage.CreateTableSQL(s.table, s.schema, "BIGINT")); err != nil {
		return fmt.Errorf("create index table: %w", err)
	}
	return nil
}

// Insert writes one record.
func (s *IndexStore) Insert(ctx context.Context, record harvest.AttributeRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("index store is not configured")
	}
	query, args, err := storage.InsertSQL(s.table, record, sq.Dollar)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, record.Key())
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *IndexStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
