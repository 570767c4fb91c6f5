package database

import (
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	q := "SELECT id FROM tasks WHERE id = ? AND owner_id = ?"

	if got := SQLite3.Rebind(q); got != q {
		t.Errorf("sqlite3 Rebind changed query: %q", got)
	}
	want := "SELECT id FROM tasks WHERE id = $1 AND owner_id = $2"
	if got := Postgres.Rebind(q); got != want {
		t.Errorf("postgres Rebind = %q, want %q", got, want)
	}
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"sqlite3", "sqlite", "postgres"} {
		d, err := DialectFor(name)
		if err != nil {
			t.Fatalf("DialectFor(%q) error: %v", name, err)
		}
		if d.Name != name {
			t.Errorf("DialectFor(%q).Name = %q", name, d.Name)
		}
	}
	if _, err := DialectFor("mysql"); err == nil {
		t.Error("DialectFor(mysql) should fail")
	}
}

func TestDSNParams(t *testing.T) {
	if got := SQLite3.dsn("/tmp/x.db"); got != "/tmp/x.db?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate" {
		t.Errorf("sqlite3 dsn = %q", got)
	}
	if got := SQLite.dsn("/tmp/x.db?mode=ro"); got != "/tmp/x.db?mode=ro" {
		t.Errorf("explicit query string should be preserved, got %q", got)
	}
	if got := Postgres.dsn("postgres://u@h/db"); got != "postgres://u@h/db" {
		t.Errorf("postgres dsn = %q", got)
	}
}

func TestOpen_PureGoSQLite(t *testing.T) {
	db, d, err := Open("sqlite", filepath.Join(t.TempDir(), "open.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	if d.Name != "sqlite" {
		t.Errorf("dialect = %q, want sqlite", d.Name)
	}
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}
