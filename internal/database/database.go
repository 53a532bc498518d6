// Package database owns SQLite connection setup and schema bootstrap for
// the gate pass store.
package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the SQLite database at path and applies
// pragmas suited to a single-writer, many-reader workload.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	role           TEXT NOT NULL,
	active         INTEGER NOT NULL DEFAULT 1,
	subject_code   TEXT UNIQUE,
	validity_end   DATETIME,
	face_registered    INTEGER NOT NULL DEFAULT 0,
	face_registered_at DATETIME,
	phone             TEXT,
	parent_name       TEXT,
	parent_phone      TEXT,
	parent_push_token TEXT,
	username          TEXT UNIQUE,
	password_hash     TEXT
);

CREATE TABLE IF NOT EXISTS auth_sessions (
	token_hash  TEXT PRIMARY KEY,
	principal_id INTEGER NOT NULL REFERENCES principals(id),
	created_at  DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL,
	last_seen   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_auth_sessions_principal ON auth_sessions(principal_id);
CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires ON auth_sessions(expires_at);

CREATE TABLE IF NOT EXISTS pass_requests (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id     INTEGER NOT NULL REFERENCES principals(id),
	direction      TEXT NOT NULL,
	reason         TEXT NOT NULL,
	state          TEXT NOT NULL,
	request_time   DATETIME NOT NULL,
	approved_time  DATETIME,
	expiry         DATETIME,
	used_time      DATETIME,
	approver_id    INTEGER REFERENCES principals(id),
	consumer_id    INTEGER REFERENCES principals(id),
	token          TEXT,
	origin_lat     REAL,
	origin_lon     REAL,
	location_ok    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pass_requests_subject ON pass_requests(subject_id);
CREATE INDEX IF NOT EXISTS idx_pass_requests_state ON pass_requests(state);
CREATE INDEX IF NOT EXISTS idx_pass_requests_subject_dir_state ON pass_requests(subject_id, direction, state);

CREATE TABLE IF NOT EXISTS scan_logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	pass_id     INTEGER,
	subject_id  INTEGER,
	scanner_id  INTEGER NOT NULL,
	direction   TEXT NOT NULL,
	result      TEXT NOT NULL,
	detail      TEXT,
	timestamp   DATETIME NOT NULL,
	emergency   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scan_logs_timestamp ON scan_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_scan_logs_pass ON scan_logs(pass_id);
CREATE INDEX IF NOT EXISTS idx_scan_logs_subject ON scan_logs(subject_id);
`

// Migrate creates the schema if it does not already exist. Safe to call on
// every boot.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
