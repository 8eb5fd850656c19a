// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"bytes"
	"context"
	"database/sql"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/tablegate/core/query"
	"github.com/relabs-tech/tablegate/core/schema"
)

// Record is one row, an ordered mapping from column name to value. It
// marshals to a JSON object with the keys in column order.
type Record struct {
	columns []string
	values  []interface{}
}

// Columns returns the column names in order
func (r Record) Columns() []string {
	return r.columns
}

// Get returns the value of a column
func (r Record) Get(column string) (interface{}, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// MarshalJSON implements json.Marshaler
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// recordFromFields creates a record of an identity followed by fields
func recordFromFields(t *schema.Table, id int64, fields query.Fields) Record {
	r := Record{
		columns: append([]string{t.IDColumn}, fields.Columns()...),
		values:  append([]interface{}{id}, fields.Values()...),
	}
	return r
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// queryRecords executes a select statement and projects all rows
func queryRecords(ctx context.Context, q queryer, t *schema.Table, s query.Statement) ([]Record, error) {
	rows, err := q.QueryContext(ctx, s.SQL, s.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return projectRows(t, rows)
}

// projectRows zips the column names of the result set with every row. The key
// order follows the columns as returned by the database. Registered columns get
// their registered spelling and their values are normalized to the registered type.
func projectRows(t *schema.Table, rows *sql.Rows) ([]Record, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(names))
	types := make([]schema.ColumnType, len(names))
	for i, name := range names {
		columns[i] = name
		if c, err := t.Column(name); err == nil {
			columns[i] = c.Name
			types[i] = c.Type
		}
	}

	records := []Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = normalize(values[i], types[i])
		}
		records = append(records, Record{columns: columns, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// normalize converts driver values into JSON friendly scalars
func normalize(value interface{}, columnType schema.ColumnType) interface{} {
	switch v := value.(type) {
	case []byte:
		s := string(v)
		switch columnType {
		case schema.ColumnTypeInteger:
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
		case schema.ColumnTypeFloat:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		case schema.ColumnTypeBoolean:
			if b, err := strconv.ParseBool(s); err == nil {
				return b
			}
		}
		return s
	case int64:
		if columnType == schema.ColumnTypeBoolean {
			return v != 0
		}
	}
	return value
}
