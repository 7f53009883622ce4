package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/threatgate/threatgate/pkg/threat"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq           INTEGER PRIMARY KEY,
	ts            TEXT NOT NULL,
	request_id    TEXT NOT NULL,
	identity_hash TEXT NOT NULL,
	threat_type   TEXT NOT NULL,
	action        TEXT NOT NULL,
	risk_score    INTEGER NOT NULL,
	signals       TEXT NOT NULL DEFAULT '',
	result_hash   TEXT NOT NULL,
	prev_hash     TEXT NOT NULL,
	hash          TEXT NOT NULL
);`

// SQLiteSink persists entries to an embedded SQLite database. No external
// server needed; suitable for single-node deployments that want queryable
// audit history.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// audit table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The ledger serializes appends; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Persist(entry Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_entries (seq, ts, request_id, identity_hash, threat_type, action, risk_score, signals, result_hash, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.RequestID,
		entry.IdentityHash,
		string(entry.ThreatType),
		string(entry.Action),
		entry.RiskScore,
		strings.Join(entry.Signals, ","),
		entry.ResultHash,
		entry.PrevHash,
		entry.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Last returns the highest-sequence entry in the table.
func (s *SQLiteSink) Last() (Entry, bool, error) {
	row := s.db.QueryRow(
		`SELECT seq, ts, request_id, identity_hash, threat_type, action, risk_score, signals, result_hash, prev_hash, hash
		 FROM audit_entries ORDER BY seq DESC LIMIT 1`)

	var (
		e          Entry
		ts         string
		threatType string
		action     string
		signals    string
	)
	err := row.Scan(&e.Seq, &ts, &e.RequestID, &e.IdentityHash, &threatType, &action, &e.RiskScore, &signals, &e.ResultHash, &e.PrevHash, &e.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read last audit entry: %w", err)
	}

	e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Entry{}, false, fmt.Errorf("parse audit timestamp: %w", err)
	}
	e.ThreatType = threat.Type(threatType)
	e.Action = threat.Action(action)
	if signals != "" {
		e.Signals = strings.Split(signals, ",")
	}
	return e, true, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
