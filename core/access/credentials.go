package access

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/relabs-tech/tablegate/core/csql"
	"github.com/relabs-tech/tablegate/core/schema"
)

// Lookup is the outcome class of a credential lookup
type Lookup int

const (
	// LookupNotFound means no credential matches the secret
	LookupNotFound Lookup = iota
	// LookupFound means exactly one credential matches the secret
	LookupFound
	// LookupAmbiguous means more than one credential matches the secret
	LookupAmbiguous
	// LookupUnavailable means the credential store could not be queried
	LookupUnavailable
)

func (l Lookup) String() string {
	switch l {
	case LookupNotFound:
		return "not found"
	case LookupFound:
		return "found"
	case LookupAmbiguous:
		return "ambiguous"
	case LookupUnavailable:
		return "unavailable"
	}
	return "Lookup(" + strconv.Itoa(int(l)) + ")"
}

// Credential is the result of a credential lookup. The permission flags are
// only meaningful for LookupFound.
type Credential struct {
	Lookup      Lookup
	Permissions Permissions
	// Err is the reason for LookupUnavailable
	Err error
}

// CredentialStore translates a client secret into a credential
type CredentialStore interface {
	Lookup(ctx context.Context, secret string) Credential
}

// SQLCredentialStore looks up credentials in the authorization table
type SQLCredentialStore struct {
	db    *csql.DB
	query string
}

// NewSQLCredentialStore returns a credential store for the configured authorization table
func NewSQLCredentialStore(db *csql.DB, c schema.CredentialsConfiguration) *SQLCredentialStore {
	return &SQLCredentialStore{
		db: db,
		query: fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s WHERE %s = %s",
			c.ReadColumn, c.CreateColumn, c.EditColumn, c.DeleteColumn,
			c.Table, c.SecretColumn, db.Dialect.Placeholder(1)),
	}
}

// Lookup executes the credential query with the secret as the only bound parameter
func (s *SQLCredentialStore) Lookup(ctx context.Context, secret string) Credential {
	rows, err := s.db.QueryContext(ctx, s.query, secret)
	if err != nil {
		return Credential{Lookup: LookupUnavailable, Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Credential{Lookup: LookupUnavailable, Err: err}
		}
		return Credential{Lookup: LookupNotFound}
	}

	var read, create, edit, del flag
	if err := rows.Scan(&read, &create, &edit, &del); err != nil {
		return Credential{Lookup: LookupUnavailable, Err: err}
	}
	if rows.Next() {
		return Credential{Lookup: LookupAmbiguous}
	}
	if err := rows.Err(); err != nil {
		return Credential{Lookup: LookupUnavailable, Err: err}
	}
	return Credential{
		Lookup: LookupFound,
		Permissions: Permissions{
			Read:   bool(read),
			Create: bool(create),
			Edit:   bool(edit),
			Delete: bool(del),
		},
	}
}

// flag scans a permission column. Any non-zero value is true, NULL is false.
type flag bool

// Scan implements sql.Scanner
func (f *flag) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = false
	case bool:
		*f = flag(v)
	case int64:
		*f = v != 0
	case float64:
		*f = v != 0
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into permission flag", src)
	}
	return nil
}

func (f *flag) parse(s string) error {
	if b, err := strconv.ParseBool(s); err == nil {
		*f = flag(b)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cannot scan %q into permission flag", s)
	}
	*f = n != 0
	return nil
}

var _ sql.Scanner = (*flag)(nil)
