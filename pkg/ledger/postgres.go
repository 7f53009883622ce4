package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threatgate/threatgate/pkg/threat"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq           BIGINT PRIMARY KEY,
	ts            TIMESTAMPTZ NOT NULL,
	request_id    TEXT NOT NULL,
	identity_hash TEXT NOT NULL,
	threat_type   TEXT NOT NULL,
	action        TEXT NOT NULL,
	risk_score    INTEGER NOT NULL,
	signals       TEXT[] NOT NULL DEFAULT '{}',
	result_hash   TEXT NOT NULL,
	prev_hash     TEXT NOT NULL,
	hash          TEXT NOT NULL
);`

// persistTimeout bounds a single audit insert so a stalled database cannot
// wedge the append path indefinitely.
const persistTimeout = 5 * time.Second

// PostgresSink persists entries to PostgreSQL for multi-node deployments
// where audit history must outlive any single gateway instance.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects with the given DSN and ensures the audit table
// exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) Persist(entry Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (seq, ts, request_id, identity_hash, threat_type, action, risk_score, signals, result_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		int64(entry.Seq),
		entry.Timestamp,
		entry.RequestID,
		entry.IdentityHash,
		string(entry.ThreatType),
		string(entry.Action),
		entry.RiskScore,
		entry.Signals,
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
func (s *PostgresSink) Last() (Entry, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var (
		e          Entry
		seq        int64
		threatType string
		action     string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT seq, ts, request_id, identity_hash, threat_type, action, risk_score, signals, result_hash, prev_hash, hash
		 FROM audit_entries ORDER BY seq DESC LIMIT 1`).
		Scan(&seq, &e.Timestamp, &e.RequestID, &e.IdentityHash, &threatType, &action, &e.RiskScore, &e.Signals, &e.ResultHash, &e.PrevHash, &e.Hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read last audit entry: %w", err)
	}

	e.Seq = uint64(seq)
	e.Timestamp = e.Timestamp.UTC()
	e.ThreatType = threat.Type(threatType)
	e.Action = threat.Action(action)
	if len(e.Signals) == 0 {
		e.Signals = nil
	}
	return e, true, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
