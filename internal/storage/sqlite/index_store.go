// Package sqlite provides the SQLite-backed index store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	sq "github.com/Masterminds/squirrel"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/storage"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "thredds.db"

// Config controls the SQLite index store.
type Config struct {
	Path  string
	Table string
	// Reset deletes the database file before opening it.
	Reset bool
}

// IndexStore writes attribute records into a SQLite table.
type IndexStore struct {
	db     *sql.DB
	table  string
	schema *harvest.Schema
}

var _ harvest.IndexStore = (*IndexStore)(nil)

// Open opens (and optionally recreates) the database and prepares the table.
func Open(ctx context.Context, cfg Config, schema *harvest.Schema) (*IndexStore, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	table, err := storage.TableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	if cfg.Reset && path != ":memory:" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, storage.CreateTableSQL(table, schema, "INTEGER")); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create index table: %w", err)
	}
	return &IndexStore{db: db, table: table, schema: schema}, nil
}

// Insert writes and commits one record.
func (s *IndexStore) Insert(ctx context.Context, record harvest.AttributeRecord) error {
	query, args, err := storage.InsertSQL(s.table, record, sq.Question)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, record.Key())
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Count returns the number of indexed rows.
func (s *IndexStore) Count(ctx context.Context) (int, error) {
	var n int
	query, args, err := sq.Select("COUNT(*)").From(s.table).ToSql()
	if err != nil {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *IndexStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
