package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cam-hm/opik-career-agent/pkg/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed append-only interview store. It holds a
// single [pgxpool.Pool]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure all required
// tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// CreateSession implements [store.Store].
func (s *Store) CreateSession(ctx context.Context, rec store.SessionRecord) error {
	const q = `
		INSERT INTO interview_sessions (id, candidate_id, target_role, stage_id, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, rec.ID, rec.CandidateID, rec.TargetRole, rec.StageID, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("interview store: create session: %w", err)
	}
	return nil
}

// AppendTurn implements [store.Store].
func (s *Store) AppendTurn(ctx context.Context, rec store.TurnRecord) error {
	const q = `
		INSERT INTO interview_turns
		    (session_id, seq, utterance, response, status, stage_id, tier, audio_bytes, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.Seq,
		rec.Utterance,
		rec.Response,
		rec.Status,
		rec.StageID,
		rec.Tier,
		rec.AudioBytes,
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("interview store: append turn: %w", err)
	}
	return nil
}

// WriteScore implements [store.Store]. The dimension map goes into a JSONB
// column so the schema stays rubric-agnostic.
func (s *Store) WriteScore(ctx context.Context, rec store.ScoreRecord) error {
	dims, err := json.Marshal(rec.Dimensions)
	if err != nil {
		return fmt.Errorf("interview store: encode dimensions: %w", err)
	}

	const q = `
		INSERT INTO interview_scores
		    (session_id, turn_seq, dimensions, composite, scored_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.TurnSeq,
		dims,
		rec.Composite,
		rec.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("interview store: write score: %w", err)
	}
	return nil
}

// WriteReport implements [store.Store]. Finalize is idempotent upstream, but
// ON CONFLICT keeps a crash-retry from failing on the primary key.
func (s *Store) WriteReport(ctx context.Context, rec store.ReportRecord) error {
	const q = `
		INSERT INTO interview_reports (session_id, outcome, report, finalized_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, q, rec.SessionID, rec.Outcome, rec.ReportJSON, rec.FinalizedAt)
	if err != nil {
		return fmt.Errorf("interview store: write report: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
