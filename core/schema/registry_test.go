package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryJSON = `{
	"credentials": {
		"table": "oauth",
		"read_column": "lectura"
	},
	"tables": [
		{
			"table": "customers",
			"columns": [
				{"name": "ID", "type": "integer"},
				{"name": "name", "type": "string"},
				{"name": "active", "type": "boolean"}
			],
			"schema": {
				"type": "object",
				"properties": {"name": {"type": "string", "minLength": 1}},
				"required": ["name"]
			}
		},
		{
			"table": "invoices",
			"id_column": "invoice_id",
			"columns": [
				{"name": "amount", "type": "float"},
				{"name": "issued", "type": "timestamp"}
			]
		}
	]
}`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(registryJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "invoices"}, r.Tables())
	assert.Equal(t, "lectura", r.Credentials.ReadColumn)
	assert.Equal(t, "can_create", r.Credentials.CreateColumn)
	assert.Equal(t, "client_secret", r.Credentials.SecretColumn)

	customers, err := r.Table("Customers")
	require.NoError(t, err)
	assert.Equal(t, "customers", customers.Name)
	assert.Equal(t, "ID", customers.IDColumn)

	c, err := customers.Column("ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, "active", c.Name)
	assert.Equal(t, ColumnTypeBoolean, c.Type)

	_, err = customers.Column("email")
	assert.True(t, errors.Is(err, ErrUnknownColumn))

	invoices, err := r.Table("invoices")
	require.NoError(t, err)
	id, err := invoices.Column("INVOICE_ID")
	require.NoError(t, err, "identity column is implicit")
	assert.Equal(t, ColumnTypeInteger, id.Type)

	_, err = r.Table("oauth")
	assert.True(t, errors.Is(err, ErrUnknownTable))
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		config string
	}{
		{"not json", `{`},
		{"no tables", `{}`},
		{"injection in table name", `{"tables":[{"table":"x; DROP TABLE y","columns":[{"name":"a","type":"string"}]}]}`},
		{"injection in column name", `{"tables":[{"table":"x","columns":[{"name":"a=1 OR 1","type":"string"}]}]}`},
		{"unknown type", `{"tables":[{"table":"x","columns":[{"name":"a","type":"blob"}]}]}`},
		{"duplicate table", `{"tables":[{"table":"x","columns":[{"name":"a","type":"string"}]},{"table":"X","columns":[{"name":"a","type":"string"}]}]}`},
		{"duplicate column", `{"tables":[{"table":"x","columns":[{"name":"a","type":"string"},{"name":"A","type":"string"}]}]}`},
		{"string identity", `{"tables":[{"table":"x","columns":[{"name":"ID","type":"string"}]}]}`},
		{"unknown property", `{"tables":[{"table":"x","columns":[{"name":"a","type":"string"}],"owner":"me"}]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.config))
			assert.Error(t, err)
		})
	}
}

func TestValidateBody(t *testing.T) {
	r, err := Parse([]byte(registryJSON))
	require.NoError(t, err)

	customers, _ := r.Table("customers")
	assert.NoError(t, r.ValidateBody(customers, []byte(`{"name": "Acme"}`), false))
	assert.Error(t, r.ValidateBody(customers, []byte(`{"name": ""}`), false))
	assert.Error(t, r.ValidateBody(customers, []byte(`{"active": true}`), false), "name is required")

	assert.NoError(t, r.ValidateBody(customers, []byte(`{"active": true}`), true),
		"a partial body may leave out required properties")
	assert.Error(t, r.ValidateBody(customers, []byte(`{"name": ""}`), true),
		"a partial body is still checked against the properties")

	invoices, _ := r.Table("invoices")
	assert.NoError(t, r.ValidateBody(invoices, []byte(`{"amount": "anything"}`), false),
		"tables without schema accept every body")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	require.NoError(t, os.WriteFile(path, []byte(registryJSON), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, r.Tables(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
