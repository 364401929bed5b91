package relational

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// dialect captures the few statements and error codes that differ per backend.
// Queries are written with $n placeholders, numbered in order of appearance.
type dialect struct {
	name         string
	driver       string
	schema       string
	truncate     string
	singleWriter bool
	rebind       func(query string) string
	isUnique     func(err error) bool
}

var placeholder = regexp.MustCompile(`\$\d+`)

var postgresDialect = &dialect{
	name:   DriverPostgres,
	driver: "postgres",
	schema: `
		CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL PRIMARY KEY,
			username   VARCHAR(64) NOT NULL UNIQUE,
			hash       VARCHAR(72) NOT NULL,
			token      TEXT,
			expires_at BIGINT
		)
	`,
	truncate: `TRUNCATE users RESTART IDENTITY`,
	rebind:   func(q string) string { return q },
	isUnique: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

var sqliteDialect = &dialect{
	name:   DriverSQLite,
	driver: "sqlite",
	schema: `
		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			username   TEXT NOT NULL UNIQUE,
			hash       TEXT NOT NULL,
			token      TEXT,
			expires_at INTEGER
		)
	`,
	truncate:     `DELETE FROM users`,
	singleWriter: true,
	rebind: func(q string) string {
		return placeholder.ReplaceAllString(q, "?")
	},
	isUnique: func(err error) bool {
		var sqliteErr *sqlite.Error
		return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	},
}

func dialectFor(driver string) (*dialect, error) {
	switch driver {
	case DriverPostgres, "":
		return postgresDialect, nil
	case DriverSQLite:
		return sqliteDialect, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}
