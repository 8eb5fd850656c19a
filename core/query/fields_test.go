package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/tablegate/core/schema"
)

func TestParseBody(t *testing.T) {
	table := customers(t)

	body, err := ParseBody(table, []byte(`{"name":"Acme","ACTIVE":true,"rating":4.5,"visits":12,"since":"2024-01-01"}`), false)
	require.NoError(t, err)
	assert.Equal(t, Fields{
		{Column: "active", Value: true},
		{Column: "name", Value: "Acme"},
		{Column: "rating", Value: 4.5},
		{Column: "since", Value: "2024-01-01"},
		{Column: "visits", Value: int64(12)},
	}, body.Fields)
	assert.JSONEq(t, `{"active":true,"name":"Acme","rating":4.5,"since":"2024-01-01","visits":12}`, string(body.JSON))

	body, err = ParseBody(table, []byte(`{}`), false)
	require.NoError(t, err)
	assert.Empty(t, body.Fields)

	body, err = ParseBody(table, []byte(`{"ID": 4}`), true)
	require.NoError(t, err)
	assert.Equal(t, Fields{{Column: "ID", Value: int64(4)}}, body.Fields)
}

func TestParseBody_Invalid(t *testing.T) {
	table := customers(t)

	testCases := []struct {
		name string
		body string
	}{
		{"nested object", `{"name": "a", "visits": {"x": 1}}`},
		{"array value", `{"name": ["a"]}`},
		{"null value", `{"name": null}`},
		{"array body", `[{"name": "a"}]`},
		{"scalar body", `"name"`},
		{"empty body", ``},
		{"broken json", `{"name": `},
		{"unknown column", `{"email": "a@b.c"}`},
		{"injected column", `{"name = name; --": "x"}`},
		{"string for boolean", `{"active": "yes"}`},
		{"float for integer", `{"visits": 1.5}`},
		{"boolean for string", `{"name": true}`},
		{"number for string", `{"name": 1}`},
		{"identity", `{"ID": 1}`},
		{"duplicate by case", `{"name": "a", "NAME": "b"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBody(table, []byte(tc.body), false)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
		})
	}

	_, err := ParseBody(table, []byte(`{"email": "a@b.c"}`), true)
	assert.True(t, errors.Is(err, schema.ErrUnknownColumn))
}
