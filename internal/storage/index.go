// Package storage holds the pieces shared by the index store backends: table
// validation, DDL and squirrel-built inserts.
package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

// DefaultTable is the index table name.
const DefaultTable = "global"

// ErrDuplicateKey is returned when a location is already indexed.
var ErrDuplicateKey = errors.New("duplicate location")

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableName returns table, or DefaultTable when empty, after validating it.
func TableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// CreateTableSQL renders the index DDL. integerType names the backend's
// integer column type.
func CreateTableSQL(table string, schema *harvest.Schema, integerType string) string {
	cols := schema.Columns()
	defs := make([]string, 0, len(cols))
	for i, c := range cols {
		if i == 0 {
			defs = append(defs, c.Name+" TEXT PRIMARY KEY NOT NULL")
			continue
		}
		typ := "TEXT"
		if c.Type == harvest.ColumnInteger {
			typ = integerType
		}
		defs = append(defs, c.Name+" "+typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}

// DropTableSQL renders the statement used to reset the index.
func DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + table
}

// InsertSQL builds the insert for record. Integer coercion failures are
// returned as schema violations before anything reaches the database.
func InsertSQL(table string, record harvest.AttributeRecord, format sq.PlaceholderFormat) (string, []any, error) {
	args, err := record.Typed()
	if err != nil {
		return "", nil, err
	}
	query, queryArgs, err := sq.Insert(table).
		Columns(record.Schema().Names()...).
		Values(args...).
		PlaceholderFormat(format).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, queryArgs, nil
}
