// Package database opens the SQL connection shared by the task store,
// the conversation log and the usage ledger, and describes the small set
// of SQL differences between the supported drivers.
//
// Three drivers are supported:
//
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo), the default
//   - "sqlite":  modernc.org/sqlite (pure Go), for cgo-free builds
//   - "postgres": github.com/lib/pq
//
// Both SQLite drivers are opened in WAL mode with a busy timeout and
// immediate write transactions, so a read-modify-write sequence inside
// a transaction holds the write lock from its first statement.
package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	_ "modernc.org/sqlite"          // sqlite driver (pure Go)
)

// Dialect captures the SQL differences the stores care about.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string

	// Serial is the column definition for an auto-assigned integer
	// primary key.
	Serial string

	// Bool is the column type for boolean flags.
	Bool string

	// ForUpdate is appended to a SELECT that precedes an UPDATE or DELETE
	// inside a transaction. Empty for SQLite, which locks the whole
	// database for the transaction instead.
	ForUpdate string

	numbered bool
}

// Dialects for the supported drivers.
var (
	SQLite3  = Dialect{Name: "sqlite3", Serial: "INTEGER PRIMARY KEY AUTOINCREMENT", Bool: "INTEGER"}
	SQLite   = Dialect{Name: "sqlite", Serial: "INTEGER PRIMARY KEY AUTOINCREMENT", Bool: "INTEGER"}
	Postgres = Dialect{Name: "postgres", Serial: "BIGSERIAL PRIMARY KEY", Bool: "BOOLEAN", ForUpdate: " FOR UPDATE", numbered: true}
)

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SQLite3, nil
	case "sqlite":
		return SQLite, nil
	case "postgres":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites '?' placeholders into the dialect's positional form.
// Queries passed here must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Open connects to the database and verifies the connection.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sql.Open(d.Name, d.dsn(dsn))
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("ping database: %w", err)
	}
	return db, d, nil
}

// dsn appends driver parameters for the SQLite drivers unless the caller
// already supplied a query string.
func (d Dialect) dsn(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	switch d.Name {
	case "sqlite3":
		return dsn + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	case "sqlite":
		return dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	}
	return dsn
}
