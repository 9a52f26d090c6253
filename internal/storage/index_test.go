package storage

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

func testSchema(t *testing.T) *harvest.Schema {
	t.Helper()
	schema, err := harvest.NewSchema([]harvest.Column{
		{Name: "location", Type: harvest.ColumnText},
		{Name: "stormyear", Type: harvest.ColumnInteger},
		{Name: "title", Type: harvest.ColumnText},
	})
	require.NoError(t, err)
	return schema
}

func TestTableName(t *testing.T) {
	t.Parallel()

	name, err := TableName("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, name)

	name, err = TableName("storms_2005")
	require.NoError(t, err)
	assert.Equal(t, "storms_2005", name)

	_, err = TableName("global; DROP TABLE x")
	require.Error(t, err)
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS global (location TEXT PRIMARY KEY NOT NULL, stormyear INTEGER, title TEXT)",
		CreateTableSQL("global", testSchema(t), "INTEGER"))
	assert.Equal(t, "DROP TABLE IF EXISTS global", DropTableSQL("global"))
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	record := testSchema(t).NewRecord("http://h/x.nc")
	require.NoError(t, record.Set("stormyear", "2005"))

	query, args, err := InsertSQL("global", record, sq.Dollar)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO global (location,stormyear,title) VALUES ($1,$2,$3)", query)
	assert.Equal(t, []any{"http://h/x.nc", int64(2005), nil}, args)

	query, _, err = InsertSQL("global", record, sq.Question)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO global (location,stormyear,title) VALUES (?,?,?)", query)
}

func TestInsertSQLSchemaViolation(t *testing.T) {
	t.Parallel()

	record := testSchema(t).NewRecord("http://h/x.nc")
	require.NoError(t, record.Set("stormyear", "two thousand"))

	_, _, err := InsertSQL("global", record, sq.Question)
	require.Error(t, err)
	assert.Equal(t, harvest.KindSchema, harvest.KindOf(err))
}
