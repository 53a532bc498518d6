package audit

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// LoginAudit persists a record of every login attempt, successful or not,
// independent of the scan log. It answers "who tried to sign in, from
// where, and did it work" for incident review, which the scan log (keyed
// on gate crossings) cannot.
type LoginAudit struct {
	db *sql.DB
}

// NewLoginAudit creates the audit_logins table if it does not already exist
// and returns a LoginAudit backed by db.
func NewLoginAudit(db *sql.DB) (*LoginAudit, error) {
	const createTableSQL = `
	CREATE TABLE IF NOT EXISTS audit_logins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		username TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		result TEXT NOT NULL,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logins_timestamp ON audit_logins(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logins_username ON audit_logins(username);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("create audit_logins table: %w", err)
	}
	return &LoginAudit{db: db}, nil
}

// LoginEntry is one row of the login audit trail.
type LoginEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	Result    string    `json:"result"`
	Detail    string    `json:"detail,omitempty"`
}

// LogSuccess records a successful login.
func (a *LoginAudit) LogSuccess(username, ip string) {
	a.log(username, ip, "success", "")
}

// LogFailure records a rejected login attempt and why.
func (a *LoginAudit) LogFailure(username, ip, reason string) {
	a.log(username, ip, "failure", reason)
}

func (a *LoginAudit) log(username, ip, result, detail string) {
	if a == nil || a.db == nil {
		return
	}
	const query = `
		INSERT INTO audit_logins (username, ip_address, result, detail)
		VALUES (?, ?, ?, ?)
	`
	if _, err := a.db.Exec(query, username, ip, result, detail); err != nil {
		log.Printf("audit: write login attempt failed: %v", err)
	}
}

// Recent returns the most recent login attempts, newest first.
func (a *LoginAudit) Recent(limit int) ([]LoginEntry, error) {
	const query = `
		SELECT id, timestamp, username, ip_address, result, detail
		FROM audit_logins
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := a.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("query login audit: %w", err)
	}
	defer rows.Close()

	var entries []LoginEntry
	for rows.Next() {
		var e LoginEntry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Username, &e.IPAddress, &e.Result, &detail); err != nil {
			return nil, fmt.Errorf("scan login audit row: %w", err)
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup deletes login audit rows older than olderThan, run periodically so
// the table does not grow without bound.
func (a *LoginAudit) Cleanup(olderThan time.Duration) (int64, error) {
	const query = `DELETE FROM audit_logins WHERE timestamp < ?`
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := a.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup login audit: %w", err)
	}
	return result.RowsAffected()
}
