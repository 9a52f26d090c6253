package harvest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ColumnType is the declared storage type of an index column.
type ColumnType string

// Supported column types.
const (
	ColumnText    ColumnType = "text"
	ColumnInteger ColumnType = "integer"
)

var validColumnName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrUnknownAttribute is returned when setting a name outside the schema.
var ErrUnknownAttribute = errors.New("unknown attribute")

// Column is one schema entry.
type Column struct {
	Name string     `mapstructure:"name"`
	Type ColumnType `mapstructure:"type"`
}

// Schema is the ordered attribute list fixed at configuration time. The first
// column is the key and is always text.
type Schema struct {
	columns []Column
	index   map[string]int
}

// NewSchema validates columns and builds a Schema.
func NewSchema(columns []Column) (*Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("schema must declare at least the key column")
	}
	s := &Schema{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if !validColumnName.MatchString(name) {
			return nil, fmt.Errorf("invalid column name %q", c.Name)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		typ := ColumnType(strings.ToLower(string(c.Type)))
		switch typ {
		case "":
			typ = ColumnText
		case ColumnText, ColumnInteger:
		default:
			return nil, fmt.Errorf("column %q: unsupported type %q", name, c.Type)
		}
		if i == 0 && typ != ColumnText {
			return nil, fmt.Errorf("key column %q must be text", name)
		}
		s.index[name] = i
		s.columns = append(s.columns, Column{Name: name, Type: typ})
	}
	return s, nil
}

// MustSchema is NewSchema for static declarations; it panics on error.
func MustSchema(columns []Column) *Schema {
	s, err := NewSchema(columns)
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultColumns returns the global-attribute table of the SSV NcML index.
func DefaultColumns() []Column {
	return []Column{
		{Name: "location", Type: ColumnText},
		{Name: "cdm_data_type", Type: ColumnText},
		{Name: "conventions", Type: ColumnText},
		{Name: "forecaststarttime", Type: ColumnText},
		{Name: "forecastendtime", Type: ColumnText},
		{Name: "institution", Type: ColumnText},
		{Name: "model", Type: ColumnText},
		{Name: "wind_source", Type: ColumnText},
		{Name: "advisory_or_cycle", Type: ColumnText},
		{Name: "grid", Type: ColumnText},
		{Name: "stormname", Type: ColumnText},
		{Name: "stormtype", Type: ColumnText},
		{Name: "stormyear", Type: ColumnInteger},
		{Name: "id", Type: ColumnText},
		{Name: "title", Type: ColumnText},
	}
}

// Key returns the key column name.
func (s *Schema) Key() string {
	return s.columns[0].Name
}

// Columns returns a copy of the ordered columns.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Names returns the ordered column names.
func (s *Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}
	return out
}

// Interesting reports whether name is a non-key column.
func (s *Schema) Interesting(name string) bool {
	i, ok := s.index[name]
	return ok && i > 0
}

// NewRecord returns a record with the key set and every other attribute null.
func (s *Schema) NewRecord(key string) AttributeRecord {
	values := make([]Value, len(s.columns))
	values[0] = Value{String: key, Valid: true}
	return AttributeRecord{schema: s, values: values}
}

// Value is a nullable attribute value.
type Value struct {
	String string
	Valid  bool
}

// AttributeRecord holds exactly the keys of its schema.
type AttributeRecord struct {
	schema *Schema
	values []Value
}

// Schema returns the schema the record was built from.
func (r AttributeRecord) Schema() *Schema {
	return r.schema
}

// Key returns the location key.
func (r AttributeRecord) Key() string {
	if len(r.values) == 0 {
		return ""
	}
	return r.values[0].String
}

// Get returns the value for name; ok is false when name is not in the schema.
func (r AttributeRecord) Get(name string) (Value, bool) {
	if r.schema == nil {
		return Value{}, false
	}
	i, ok := r.schema.index[name]
	if !ok {
		return Value{}, false
	}
	return r.values[i], true
}

// Set stores value for an interesting attribute. The key cannot be reassigned.
func (r AttributeRecord) Set(name, value string) error {
	if r.schema == nil || !r.schema.Interesting(name) {
		return fmt.Errorf("%w %q", ErrUnknownAttribute, name)
	}
	r.values[r.schema.index[name]] = Value{String: value, Valid: true}
	return nil
}

// Values returns a copy of the values in schema order.
func (r AttributeRecord) Values() []Value {
	return append([]Value(nil), r.values...)
}

// Populated returns the number of non-null interesting attributes.
func (r AttributeRecord) Populated() int {
	n := 0
	if len(r.values) == 0 {
		return 0
	}
	for _, v := range r.values[1:] {
		if v.Valid {
			n++
		}
	}
	return n
}

// Typed converts the record into driver arguments in schema order: null
// values become nil, integer columns are parsed and text columns pass through.
func (r AttributeRecord) Typed() ([]any, error) {
	if r.schema == nil {
		return nil, fmt.Errorf("record has no schema")
	}
	args := make([]any, len(r.values))
	for i, v := range r.values {
		if !v.Valid {
			args[i] = nil
			continue
		}
		col := r.schema.columns[i]
		switch col.Type {
		case ColumnInteger:
			n, err := strconv.ParseInt(strings.TrimSpace(v.String), 10, 64)
			if err != nil {
				return nil, SchemaError(col.Name, v.String, err)
			}
			args[i] = n
		default:
			args[i] = v.String
		}
	}
	return args, nil
}
