package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// ErrUnknownTable is returned for tables which are not registered
var ErrUnknownTable = errors.New("unknown table")

// ErrUnknownColumn is returned for columns which are not registered for a table
var ErrUnknownColumn = errors.New("unknown column")

//go:embed registry.schema.json
var registrySchema string

const registrySchemaID = "https://relabs.tech/tablegate/registry.json"

// ColumnType is the declared type of a registered column
type ColumnType string

// all supported column types
const (
	ColumnTypeString    ColumnType = "string"
	ColumnTypeInteger   ColumnType = "integer"
	ColumnTypeFloat     ColumnType = "float"
	ColumnTypeBoolean   ColumnType = "boolean"
	ColumnTypeTimestamp ColumnType = "timestamp"
)

// Configuration is the JSON description of all tables the gateway exposes,
// plus the location of the credential table
type Configuration struct {
	Credentials CredentialsConfiguration `json:"credentials"`
	Tables      []TableConfiguration     `json:"tables"`
}

// CredentialsConfiguration names the authorization table and its columns
type CredentialsConfiguration struct {
	Table        string `json:"table"`
	SecretColumn string `json:"secret_column"`
	ReadColumn   string `json:"read_column"`
	CreateColumn string `json:"create_column"`
	EditColumn   string `json:"edit_column"`
	DeleteColumn string `json:"delete_column"`
}

// TableConfiguration describes one exposed table
type TableConfiguration struct {
	Table       string              `json:"table"`
	IDColumn    string              `json:"id_column"`
	Description string              `json:"description"`
	Columns     []ColumnDescription `json:"columns"`
	Schema      json.RawMessage     `json:"schema"`
}

// ColumnDescription is a single column of a table
type ColumnDescription struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is a registered table. Identifiers from a Table are safe to
// interpolate into SQL statements.
type Table struct {
	Name        string
	IDColumn    string
	Description string
	Columns     []ColumnDescription
	columns     map[string]int // lower case name to index
	hasSchema   bool
}

// Registry is the allow-list of tables, columns and column types
type Registry struct {
	Credentials CredentialsConfiguration
	tables      map[string]*Table
	order       []string
	validator   *Validator
}

// Load reads a registry configuration from a file
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read table configuration: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a registry configuration
func Parse(data []byte) (*Registry, error) {
	validator, err := NewValidator([]string{registrySchema}, nil)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateString(string(data), registrySchemaID); err != nil {
		return nil, fmt.Errorf("invalid table configuration: %w", err)
	}

	var config Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse error in table configuration: %w", err)
	}

	r := &Registry{
		Credentials: config.Credentials.withDefaults(),
		tables:      make(map[string]*Table),
		validator:   validator,
	}
	for _, tc := range config.Tables {
		if err := r.add(tc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(tc TableConfiguration) error {
	key := strings.ToLower(tc.Table)
	if _, ok := r.tables[key]; ok {
		return fmt.Errorf("table %s is configured twice", tc.Table)
	}
	t := &Table{
		Name:        tc.Table,
		IDColumn:    tc.IDColumn,
		Description: tc.Description,
		columns:     make(map[string]int),
	}
	if t.IDColumn == "" {
		t.IDColumn = "ID"
	}
	for _, c := range tc.Columns {
		lower := strings.ToLower(c.Name)
		if _, ok := t.columns[lower]; ok {
			return fmt.Errorf("column %s of table %s is configured twice", c.Name, tc.Table)
		}
		t.columns[lower] = len(t.Columns)
		t.Columns = append(t.Columns, c)
	}
	id, err := t.Column(t.IDColumn)
	if err != nil {
		// the identity column is implicit
		t.columns[strings.ToLower(t.IDColumn)] = len(t.Columns)
		t.Columns = append(t.Columns, ColumnDescription{Name: t.IDColumn, Type: ColumnTypeInteger})
	} else if id.Type != ColumnTypeInteger {
		return fmt.Errorf("identity column %s of table %s must be an integer", t.IDColumn, tc.Table)
	} else {
		t.IDColumn = id.Name
	}

	if len(tc.Schema) > 0 {
		if err := r.validator.Add(tableSchemaID(t.Name), tc.Schema); err != nil {
			return err
		}
		partial, err := withoutRequired(tc.Schema)
		if err != nil {
			return fmt.Errorf("schema of table %s: %w", tc.Table, err)
		}
		if err := r.validator.Add(tablePartialSchemaID(t.Name), partial); err != nil {
			return err
		}
		t.hasSchema = true
	}

	r.tables[key] = t
	r.order = append(r.order, t.Name)
	return nil
}

func (c CredentialsConfiguration) withDefaults() CredentialsConfiguration {
	def := func(s *string, d string) {
		if *s == "" {
			*s = d
		}
	}
	def(&c.Table, "oauth")
	def(&c.SecretColumn, "client_secret")
	def(&c.ReadColumn, "can_read")
	def(&c.CreateColumn, "can_create")
	def(&c.EditColumn, "can_edit")
	def(&c.DeleteColumn, "can_delete")
	return c
}

func tableSchemaID(table string) string {
	return "table:" + table
}

func tablePartialSchemaID(table string) string {
	return "table:" + table + ":partial"
}

// withoutRequired drops the top level "required" keyword, so that a body
// carrying only some of the columns can still be validated
func withoutRequired(schema []byte) ([]byte, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(schema, &m); err != nil {
		return nil, err
	}
	delete(m, "required")
	return json.Marshal(m)
}

// Table returns the registered table with the given name. Names match case insensitively.
func (r *Registry) Table(name string) (*Table, error) {
	t, ok := r.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownTable, name)
	}
	return t, nil
}

// Tables returns the names of all registered tables in configuration order
func (r *Registry) Tables() []string {
	return append([]string{}, r.order...)
}

// ValidateBody validates a write body against the table's JSON schema, if it has one.
// A partial body, as sent for an edit, is not checked for required properties.
func (r *Registry) ValidateBody(t *Table, body []byte, partial bool) error {
	if !t.hasSchema {
		return nil
	}
	if partial {
		return r.validator.ValidateString(string(body), tablePartialSchemaID(t.Name))
	}
	return r.validator.ValidateString(string(body), tableSchemaID(t.Name))
}

// Column returns the registered column with the given name. Names match case insensitively,
// the returned description carries the registered spelling.
func (t *Table) Column(name string) (ColumnDescription, error) {
	i, ok := t.columns[strings.ToLower(name)]
	if !ok {
		return ColumnDescription{}, fmt.Errorf("%w %s in table %s", ErrUnknownColumn, name, t.Name)
	}
	return t.Columns[i], nil
}
