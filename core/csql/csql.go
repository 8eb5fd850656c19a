/*
Package csql opens the gateway's connection pool and describes the SQL dialect
of the selected driver.

Supported drivers are "sqlserver" (Microsoft SQL Server), "postgres" and
"sqlite3". The dialect decides the placeholder syntax for bound parameters and
how the identity of a freshly inserted row is returned.
*/
package csql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"               // load database driver for postgres
	_ "github.com/mattn/go-sqlite3"     // load database driver for sqlite3
	_ "github.com/microsoft/go-mssqldb" // load database driver for sqlserver

	"github.com/relabs-tech/tablegate/core/logger"
)

// DB encapsulates a standard sql.DB pool with the dialect of its driver
type DB struct {
	*sql.DB
	Dialect Dialect
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// Configuration describes how to reach the database and how to size the pool
type Configuration struct {
	Driver          string
	Server          string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DataSourceName returns the driver specific connection string for the configuration
func (c Configuration) DataSourceName() (string, error) {
	switch c.Driver {
	case DriverSQLServer:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     c.Server,
			RawQuery: url.Values{"database": []string{c.Database}}.Encode(),
		}
		return u.String(), nil
	case DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     c.Server,
			Path:     "/" + c.Database,
			RawQuery: url.Values{"sslmode": []string{"disable"}}.Encode(),
		}
		return u.String(), nil
	case DriverSQLite:
		return c.Database, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", c.Driver)
}

// Open opens a bounded connection pool and verifies that the database is reachable.
func Open(ctx context.Context, c Configuration) (*DB, error) {
	dialect, err := DialectFor(c.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := c.DataSourceName()
	if err != nil {
		return nil, err
	}

	logger.Default().Infof("connecting to %s database %s on %s", c.Driver, c.Database, c.Server)
	db, err := sql.Open(c.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot reach database: %w", err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Wrap wraps an already opened pool, typically in tests
func Wrap(db *sql.DB, driver string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db, Dialect: dialect}, nil
}
