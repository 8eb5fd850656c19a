package csql

import (
	"fmt"
	"strconv"
)

// supported driver names, as registered with database/sql
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite3"
)

// IdentityStyle describes how an INSERT statement hands back the identity
// of the inserted row
type IdentityStyle int

const (
	// IdentityReturning appends "RETURNING <id>" to the statement
	IdentityReturning IdentityStyle = iota
	// IdentityOutput places "OUTPUT INSERTED.<id>" before the VALUES clause
	IdentityOutput
)

// Dialect is the SQL flavour of a driver
type Dialect struct {
	Driver   string
	Identity IdentityStyle
	// placeholder returns the marker for the n-th bound parameter, n starting at 1
	placeholder func(n int) string
}

// Placeholder returns the marker for the n-th bound parameter, counting from 1
func (d Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

var dialects = map[string]Dialect{
	DriverSQLServer: {
		Driver:      DriverSQLServer,
		Identity:    IdentityOutput,
		placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
	},
	DriverPostgres: {
		Driver:      DriverPostgres,
		Identity:    IdentityReturning,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	},
	DriverSQLite: {
		Driver:      DriverSQLite,
		Identity:    IdentityReturning,
		placeholder: func(int) string { return "?" },
	},
}

// DialectFor returns the dialect of a supported driver
func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}
