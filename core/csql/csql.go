/*
Package csql wraps a relational database handle together with its schema and
dialect. Postgres (lib/pq) is the production driver, SQLite (modernc) is used for
tests and local runs.

Queries are written with '?' placeholders and passed through Rebind, which turns
them into the dialect's bindvars.
*/
package csql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/relabs-tech/coffeeshop/core/logger"
)

// supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB encapsulates a sqlx.DB with a schema and the driver name
type DB struct {
	*sqlx.DB
	Schema string
	Driver string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// OpenWithSchema opens a postgres database with a schema. The schema gets
// created if it does not exist yet. It panics if the database cannot be reached.
func OpenWithSchema(dataSourceName, password, schema string) *DB {
	db, err := Open(DriverPostgres, dataSourceName, password, schema)
	if err != nil {
		panic(err)
	}
	return db
}

// Open opens a database for the given driver. For postgres, the password is appended to
// the data source name and the schema is created if it does not exist. SQLite has no
// schemas, the schema is ignored.
func Open(driver, dataSourceName, password, schema string) (*DB, error) {
	rlog := logger.Default()
	switch driver {
	case DriverPostgres:
		if len(password) > 0 {
			dataSourceName += " password=" + password
		}
		if len(schema) == 0 {
			schema = "public"
		}
	case DriverSQLite:
		schema = ""
		if !strings.Contains(dataSourceName, "?") {
			dataSourceName += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}

	rlog.Infoln("connecting to database:", driver)
	db, err := sqlx.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer at a time, sqlite would answer SQLITE_BUSY otherwise
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot reach %s database: %w", driver, err)
	}
	if driver == DriverPostgres && schema != "public" {
		rlog.Infoln("selected database schema:", schema)
		if _, err = db.Exec(`CREATE schema IF NOT EXISTS "` + schema + `";`); err != nil {
			db.Close()
			return nil, fmt.Errorf("cannot create schema %s: %w", schema, err)
		}
	}
	return &DB{DB: db, Schema: schema, Driver: driver}, nil
}

// Table returns the qualified and quoted name of a table in this database's schema
func (db *DB) Table(name string) string {
	if db.Schema == "" {
		return `"` + name + `"`
	}
	return `"` + db.Schema + `"."` + name + `"`
}

// ClearSchema clears all the data contained in the database's schema.
// For postgres this is done by dropping the schema and then recreating it, for
// sqlite all tables are dropped.
func (db *DB) ClearSchema() {
	rlog := logger.Default()
	if db.Driver == DriverSQLite {
		var tables []string
		if err := db.Select(&tables, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%';`); err != nil {
			rlog.WithError(err).Errorln("clear schema error")
			return
		}
		for _, table := range tables {
			if _, err := db.Exec(`DROP TABLE IF EXISTS "` + table + `";`); err != nil {
				rlog.WithError(err).Errorln("clear schema error:", table)
			}
		}
		return
	}
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA "` + db.Schema + `" CASCADE;
	CREATE schema IF NOT EXISTS "` + db.Schema + `";`)
	if err != nil {
		rlog.WithError(err).Errorln("clear schema error:", db.Schema)
	}
}

// IsConstraintViolation returns true if err was caused by the database rejecting a
// write because of an integrity constraint (unique, not null, foreign key, check)
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
