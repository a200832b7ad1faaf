// Package postgres provides a PostgreSQL-backed implementation of the
// append-only interview store.
//
// All four record streams (sessions, turns, scores, reports) share a single
// [pgxpool.Pool] connection pool. [Migrate] creates the required tables via
// CREATE TABLE IF NOT EXISTS, so the store is self-provisioning against an
// empty database.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.CreateSession(ctx, rec)
//	_ = st.AppendTurn(ctx, turn)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS interview_sessions (
    id            TEXT         PRIMARY KEY,
    candidate_id  TEXT         NOT NULL DEFAULT '',
    target_role   TEXT         NOT NULL DEFAULT '',
    stage_id      TEXT         NOT NULL,
    started_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_candidate_id
    ON interview_sessions (candidate_id);
`

const ddlTurns = `
CREATE TABLE IF NOT EXISTS interview_turns (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    seq         INT          NOT NULL,
    utterance   TEXT         NOT NULL DEFAULT '',
    response    TEXT         NOT NULL DEFAULT '',
    status      TEXT         NOT NULL,
    stage_id    TEXT         NOT NULL DEFAULT '',
    tier        TEXT         NOT NULL DEFAULT '',
    audio_bytes INT          NOT NULL DEFAULT 0,
    started_at  TIMESTAMPTZ  NOT NULL,
    ended_at    TIMESTAMPTZ  NOT NULL,

    UNIQUE (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_interview_turns_session_id
    ON interview_turns (session_id);
`

const ddlScores = `
CREATE TABLE IF NOT EXISTS interview_scores (
    id          BIGSERIAL        PRIMARY KEY,
    session_id  TEXT             NOT NULL,
    turn_seq    INT              NOT NULL,
    dimensions  JSONB            NOT NULL,
    composite   DOUBLE PRECISION NOT NULL,
    scored_at   TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_scores_session_id
    ON interview_scores (session_id);
`

const ddlReports = `
CREATE TABLE IF NOT EXISTS interview_reports (
    session_id    TEXT         PRIMARY KEY,
    outcome       TEXT         NOT NULL,
    report        JSONB        NOT NULL,
    finalized_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate ensures all required tables and indexes exist. It is idempotent and
// safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlSessions, ddlTurns, ddlScores, ddlReports} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("exec ddl: %w", err)
		}
	}
	return nil
}
