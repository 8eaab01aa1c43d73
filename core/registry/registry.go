/*
Package registry provides a persistent registry of objects in a SQL database

The package uses JSON to serialize the data. Every value carries the time it was
written, which lets callers implement freshness policies on top of it.
*/
package registry

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/coffeeshop/core/csql"
)

const tableName = "_registry_"

// New creates a new registry for the specified database
func New(db *csql.DB) (Registry, error) {
	valueType := "json"
	if db.Driver == csql.DriverSQLite {
		valueType = "text"
	}
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Table(tableName) + `
(key varchar NOT NULL,
value ` + valueType + ` NOT NULL,
timestamp bigint NOT NULL,
PRIMARY KEY(key)
);`)
	if err != nil {
		return Registry{}, fmt.Errorf("cannot create registry: %w", err)
	}
	return Registry{db: db}, nil
}

// MustNew is like New but panics on error
func MustNew(db *csql.DB) Registry {
	r, err := New(db)
	if err != nil {
		panic(err)
	}
	return r
}

// Registry provides a persistent registry of objects in a sql database.
type Registry struct {
	db *csql.DB
}

// Accessor is an accessor with optional prefix
type Accessor struct {
	Prefix   string
	Registry Registry
}

// Accessor returns a registry accessor with prefix
func (r Registry) Accessor(prefix string) Accessor {
	return Accessor{
		Prefix:   prefix,
		Registry: r,
	}
}

func (r Accessor) key(key string) string {
	if len(r.Prefix) > 0 {
		return r.Prefix + ":" + key
	}
	return key
}

// Read reads a value from the registry. It returns the
// time when the value was written, or a zero timestamp
// if there is no value.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (r Accessor) Read(key string, value interface{}) (time.Time, error) {
	var (
		rawValue []byte
		millis   int64
	)
	key = r.key(key)
	db := r.Registry.db

	err := db.QueryRowx(db.Rebind(`SELECT value, timestamp FROM `+db.Table(tableName)+` WHERE key=?;`),
		key).Scan(&rawValue, &millis)
	if err == csql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot read key '%s': %w", key, err)
	}
	if err = json.Unmarshal(rawValue, value); err != nil {
		return time.Time{}, fmt.Errorf("cannot decode key '%s': %w", key, err)
	}
	return time.UnixMilli(millis).UTC(), nil
}

// Write writes a value into the registry.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (r Accessor) Write(key string, value interface{}) error {

	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key = r.key(key)
	db := r.Registry.db
	now := time.Now().UTC().UnixMilli()
	res, err := db.Exec(db.Rebind(
		`INSERT INTO `+db.Table(tableName)+`(key,value,timestamp)
VALUES(?,?,?)
ON CONFLICT (key) DO UPDATE SET value=excluded.value,timestamp=excluded.timestamp;`),
		key, string(body), now)
	if err != nil {
		return fmt.Errorf("cannot write key '%s': %w", key, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("could not write key %s", key)
	}
	return nil
}

// Delete deletes a value from the registry.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (r Accessor) Delete(key string) error {
	db := r.Registry.db
	_, err := db.Exec(db.Rebind(`DELETE FROM `+db.Table(tableName)+` WHERE key=?;`), r.key(key))
	return err
}
