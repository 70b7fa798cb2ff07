package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxhire/voxhire/internal/interview"
)

// Compile-time interface check.
var _ ScriptStore = (*PostgresStore)(nil)

const ddlScripts = `
CREATE TABLE IF NOT EXISTS interview_scripts (
    session_id   TEXT         PRIMARY KEY,
    payload      JSONB        NOT NULL,
    version      INTEGER      NOT NULL DEFAULT 1,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS interview_feedback (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    rating       INTEGER      NOT NULL,
    comments     TEXT         NOT NULL DEFAULT '',
    submitted_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_feedback_session_id
    ON interview_feedback (session_id);
`

// PostgresStore is the PostgreSQL-backed [ScriptStore]. Scripts are stored
// as JSONB payloads alongside an explicit version column for optimistic
// concurrency on review-UI edits.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool to dsn, verifies connectivity and
// runs the idempotent migration.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlScripts); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases all connections held by the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping probes database connectivity. Used by the readiness endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveScript implements [ScriptStore].
func (s *PostgresStore) SaveScript(ctx context.Context, sessionID string, script *interview.Script) error {
	payload, err := json.Marshal(script)
	if err != nil {
		return fmt.Errorf("postgres store: marshal script: %w", err)
	}

	const q = `
		INSERT INTO interview_scripts (session_id, payload, version)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q, sessionID, payload, script.Version)
	if err != nil {
		return fmt.Errorf("postgres store: save script: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Script implements [ScriptStore].
func (s *PostgresStore) Script(ctx context.Context, sessionID string) (*interview.Script, error) {
	const q = `
		SELECT payload, version
		FROM   interview_scripts
		WHERE  session_id = $1`

	var (
		payload []byte
		version int
	)
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&payload, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load script: %w", err)
	}

	var script interview.Script
	if err := json.Unmarshal(payload, &script); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal script: %w", err)
	}
	script.Version = version
	return &script, nil
}

// UpdateScript implements [ScriptStore]. The version check and bump happen
// in one statement so concurrent editors cannot both win.
func (s *PostgresStore) UpdateScript(ctx context.Context, sessionID string, script *interview.Script, expectedVersion int) error {
	script.Version = expectedVersion + 1
	payload, err := json.Marshal(script)
	if err != nil {
		return fmt.Errorf("postgres store: marshal script: %w", err)
	}

	const q = `
		UPDATE interview_scripts
		SET    payload = $3, version = $4, updated_at = now()
		WHERE  session_id = $1 AND version = $2`

	tag, err := s.pool.Exec(ctx, q, sessionID, expectedVersion, payload, script.Version)
	if err != nil {
		return fmt.Errorf("postgres store: update script: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing script from a stale version.
		var exists bool
		checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM interview_scripts WHERE session_id = $1)`,
			sessionID).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("postgres store: update script: %w", checkErr)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

// SaveFeedback implements [ScriptStore].
func (s *PostgresStore) SaveFeedback(ctx context.Context, fb Feedback) error {
	const q = `
		INSERT INTO interview_feedback (session_id, rating, comments, submitted_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, fb.SessionID, fb.Rating, fb.Comments, fb.SubmittedAt)
	if err != nil {
		return fmt.Errorf("postgres store: save feedback: %w", err)
	}
	return nil
}
