// File: internal/audit/store.go
package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts the pgxpool.Pool so the sink can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is a persistent audit sink backed by PostgreSQL. It mirrors the JSONL
// trail: inserts only, no updates or deletes.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

const createAuditTableSQL = `
CREATE TABLE IF NOT EXISTS audit_events (
    event_id           TEXT PRIMARY KEY,
    session_id         TEXT NOT NULL,
    ts                 TIMESTAMPTZ NOT NULL,
    event              TEXT NOT NULL,
    action_kind        TEXT,
    parameters_summary TEXT,
    validator_decision TEXT,
    reason             TEXT,
    execution_success  BOOLEAN,
    message            TEXT
)`

const insertAuditEventSQL = `
INSERT INTO audit_events (
    event_id, session_id, ts, event, action_kind,
    parameters_summary, validator_decision, reason, execution_success, message
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// NewStore verifies the connection and ensures the audit table exists.
func NewStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	if _, err := pool.Exec(ctx, createAuditTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure audit table: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("audit.store"),
	}, nil
}

// Connect opens a pgx pool for the given DSN and wraps it in a Store.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit database pool: %w", err)
	}
	store, err := NewStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Write inserts one audit entry.
func (s *Store) Write(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, insertAuditEventSQL,
		e.EventID, e.SessionID, e.Timestamp, e.Event, nullable(e.ActionKind),
		nullable(e.ParametersSum), nullable(e.ValidatorDecision), nullable(e.Reason),
		e.ExecutionSuccess, nullable(e.Message),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event %s: %w", e.EventID, err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
