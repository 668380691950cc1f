package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the run journal, creating its directory when needed.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	conn, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return conn, nil
}

// migrations are applied in order; index+1 is the schema version stored in
// PRAGMA user_version once that step has run.
var migrations = []string{
	`CREATE TABLE runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_ts DATETIME NOT NULL,
		finished_ts DATETIME NOT NULL,
		snapshot_ts TEXT NOT NULL DEFAULT '',
		cpu_pct REAL NOT NULL DEFAULT 0,
		ram_pct REAL NOT NULL DEFAULT 0,
		containers_total INTEGER NOT NULL DEFAULT 0,
		containers_running INTEGER NOT NULL DEFAULT 0,
		critical_count INTEGER NOT NULL DEFAULT 0,
		warning_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_runs_started ON runs(started_ts DESC);`,

	`CREATE TABLE violations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		level TEXT NOT NULL,
		metric TEXT NOT NULL,
		subject TEXT NOT NULL,
		value REAL NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX idx_violations_run ON violations(run_id);`,

	`CREATE TABLE notification_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		channel TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		last_error TEXT,
		sent_ts_nullable DATETIME
	);
	CREATE INDEX idx_notification_events_run ON notification_events(run_id);`,
}

// SchemaVersion is the user_version a fully migrated journal carries.
func SchemaVersion() int { return len(migrations) }

// Migrate brings the journal schema up to SchemaVersion. Each step runs in
// its own transaction together with the version bump.
func Migrate(conn *sql.DB) error {
	var current int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("journal schema version %d is newer than supported %d", current, len(migrations))
	}
	for v := current; v < len(migrations); v++ {
		tx, err := conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set schema version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
