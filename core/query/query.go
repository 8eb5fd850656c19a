/*
Package query builds the parameterized SQL statements of the gateway.

Identifiers (table and column names) are only ever taken from a registered
schema.Table, never from the request. Everything that comes from the request
ends up as a bound parameter.

Statements:

	SELECT * FROM {table}
	SELECT * FROM {table} WHERE {id} = ?
	INSERT INTO {table} (c1, c2) VALUES (?, ?) RETURNING {id}
	UPDATE {table} SET c1 = ?, c2 = ? WHERE {id} = ?
	DELETE FROM {table} WHERE {id} = ?
	SELECT * FROM {table} WHERE c1 = ? AND c2 = ?

The placeholder syntax and the way the inserted identity is returned depend
on the dialect.
*/
package query

import (
	"strings"

	"github.com/relabs-tech/tablegate/core/csql"
	"github.com/relabs-tech/tablegate/core/schema"
)

// Statement is a SQL statement together with its bound values
type Statement struct {
	SQL  string
	Args []interface{}
}

// Builder builds statements for one SQL dialect
type Builder struct {
	dialect csql.Dialect
}

// New returns a builder for the given dialect
func New(dialect csql.Dialect) *Builder {
	return &Builder{dialect: dialect}
}

// returns p1,...,pn starting at offset+1
func (b *Builder) parameterString(offset, n int) string {
	params := make([]string, n)
	for i := 0; i < n; i++ {
		params[i] = b.dialect.Placeholder(offset + i + 1)
	}
	return strings.Join(params, ", ")
}

// returns fields[0]=p(offset+1) sep ... sep fields[n-1]=p(offset+n)
func (b *Builder) compareString(offset int, fields Fields, sep string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Column + " = " + b.dialect.Placeholder(offset+i+1)
	}
	return strings.Join(parts, sep)
}

// SelectAll returns all rows of a table. No order is imposed.
func (b *Builder) SelectAll(t *schema.Table) Statement {
	return Statement{SQL: "SELECT * FROM " + t.Name}
}

// SelectByID returns the row with the given identity
func (b *Builder) SelectByID(t *schema.Table, id int64) Statement {
	return Statement{
		SQL:  "SELECT * FROM " + t.Name + " WHERE " + t.IDColumn + " = " + b.dialect.Placeholder(1),
		Args: []interface{}{id},
	}
}

// Insert inserts one row and returns its identity as the single result column.
// An empty field set inserts a row of default values.
func (b *Builder) Insert(t *schema.Table, fields Fields) Statement {
	var returning, output string
	switch b.dialect.Identity {
	case csql.IdentityOutput:
		output = " OUTPUT INSERTED." + t.IDColumn
	default:
		returning = " RETURNING " + t.IDColumn
	}

	if len(fields) == 0 {
		return Statement{SQL: "INSERT INTO " + t.Name + output + " DEFAULT VALUES" + returning}
	}
	return Statement{
		SQL: "INSERT INTO " + t.Name + " (" + strings.Join(fields.Columns(), ", ") + ")" + output +
			" VALUES (" + b.parameterString(0, len(fields)) + ")" + returning,
		Args: fields.Values(),
	}
}

// Update sets the given fields on the row with the given identity
func (b *Builder) Update(t *schema.Table, id int64, fields Fields) (Statement, error) {
	if len(fields) == 0 {
		return Statement{}, validationErrorf("nothing to update")
	}
	return Statement{
		SQL: "UPDATE " + t.Name + " SET " + b.compareString(0, fields, ", ") +
			" WHERE " + t.IDColumn + " = " + b.dialect.Placeholder(len(fields)+1),
		Args: append(fields.Values(), id),
	}, nil
}

// Delete deletes the row with the given identity
func (b *Builder) Delete(t *schema.Table, id int64) Statement {
	return Statement{
		SQL:  "DELETE FROM " + t.Name + " WHERE " + t.IDColumn + " = " + b.dialect.Placeholder(1),
		Args: []interface{}{id},
	}
}

// Filter selects all rows matching every predicate by equality. An empty
// predicate set selects all rows.
func (b *Builder) Filter(t *schema.Table, predicates Fields) Statement {
	if len(predicates) == 0 {
		return b.SelectAll(t)
	}
	return Statement{
		SQL:  "SELECT * FROM " + t.Name + " WHERE " + b.compareString(0, predicates, " AND "),
		Args: predicates.Values(),
	}
}
