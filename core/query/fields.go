package query

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/tablegate/core/schema"
)

// ValidationError is returned for request bodies which cannot be turned into a statement
type ValidationError struct {
	msg string
	err error
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func validationErrorf(format string, a ...interface{}) *ValidationError {
	err := fmt.Errorf(format, a...)
	return &ValidationError{msg: err.Error(), err: errors.Unwrap(err)}
}

// Field is a registered column with the value bound to it
type Field struct {
	Column string
	Value  interface{}
}

// Fields is an ordered set of fields
type Fields []Field

// Columns returns the column names in order
func (f Fields) Columns() []string {
	columns := make([]string, len(f))
	for i := range f {
		columns[i] = f[i].Column
	}
	return columns
}

// Values returns the values in order
func (f Fields) Values() []interface{} {
	values := make([]interface{}, len(f))
	for i := range f {
		values[i] = f[i].Value
	}
	return values
}

// Body is a decoded request body
type Body struct {
	Fields Fields
	// JSON is the body re-encoded with registered column names, used for JSON schema validation
	JSON []byte
}

// ParseBody decodes a flat JSON object and maps it onto registered columns of t.
//
// Every value must be a string, an integer, a float or a boolean and must be
// compatible with the declared column type. null, nested objects and arrays are
// rejected. Fields are ordered by column name. If withIdentity is false, the
// identity column must not be part of the body.
func ParseBody(t *schema.Table, data []byte, withIdentity bool) (*Body, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, validationErrorf("missing request body")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var decoded interface{}
	if err := decoder.Decode(&decoded); err != nil {
		return nil, validationErrorf("invalid json data")
	}
	raw, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, validationErrorf("request body must be a JSON object")
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := map[string]bool{}
	body := &Body{Fields: make(Fields, 0, len(keys))}
	for _, key := range keys {
		column, err := t.Column(key)
		if err != nil {
			return nil, validationErrorf("invalid field %s: %w", key, err)
		}
		if seen[column.Name] {
			return nil, validationErrorf("field %s is given more than once", column.Name)
		}
		seen[column.Name] = true
		if !withIdentity && strings.EqualFold(column.Name, t.IDColumn) {
			return nil, validationErrorf("identity column %s cannot be set", column.Name)
		}
		value, err := convert(column, raw[key])
		if err != nil {
			return nil, err
		}
		body.Fields = append(body.Fields, Field{Column: column.Name, Value: value})
	}

	canonical := make(map[string]interface{}, len(body.Fields))
	for _, f := range body.Fields {
		canonical[f.Column] = f.Value
	}
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return nil, err
	}
	body.JSON = encoded
	return body, nil
}

// convert checks a decoded JSON scalar against the column type and returns the
// value to bind
func convert(column schema.ColumnDescription, value interface{}) (interface{}, error) {
	invalid := func() error {
		return validationErrorf("invalid value for %s: expected %s", column.Name, column.Type)
	}

	switch v := value.(type) {
	case nil, map[string]interface{}, []interface{}:
		return nil, validationErrorf("invalid value for %s: only strings, numbers and booleans are allowed", column.Name)
	case string:
		if column.Type == schema.ColumnTypeString || column.Type == schema.ColumnTypeTimestamp {
			return v, nil
		}
	case bool:
		if column.Type == schema.ColumnTypeBoolean {
			return v, nil
		}
	case json.Number:
		switch column.Type {
		case schema.ColumnTypeInteger:
			i, err := v.Int64()
			if err != nil {
				return nil, invalid()
			}
			return i, nil
		case schema.ColumnTypeFloat:
			f, err := v.Float64()
			if err != nil {
				return nil, invalid()
			}
			return f, nil
		}
	}
	return nil, invalid()
}
