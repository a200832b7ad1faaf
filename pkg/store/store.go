// Package store defines the append-only persistence interface for interview
// sessions.
//
// The engine treats storage as a write-behind audit log: records are appended
// as the session progresses and are never read back during a live session.
// All state needed to drive the conversation lives in memory; a store outage
// therefore degrades durability, not the interview itself. Callers log store
// errors and move on.
package store

import (
	"context"
	"time"
)

// SessionRecord is written once when a session is created.
type SessionRecord struct {
	ID          string
	CandidateID string
	TargetRole  string
	StageID     string
	StartedAt   time.Time
}

// TurnRecord is written once per completed turn, including failed turns.
type TurnRecord struct {
	SessionID  string
	Seq        int
	Utterance  string
	Response   string
	Status     string
	StageID    string
	Tier       string
	AudioBytes int
	StartedAt  time.Time
	EndedAt    time.Time
}

// ScoreRecord is written once per shadow analysis result. Dimensions is the
// per-rubric score map; the rubric varies by stage, so dimensions are stored
// as a document rather than fixed columns.
type ScoreRecord struct {
	SessionID  string
	TurnSeq    int
	Dimensions map[string]int
	Composite  float64
	ScoredAt   time.Time
}

// ReportRecord is written once when a session is finalized.
type ReportRecord struct {
	SessionID   string
	Outcome     string
	ReportJSON  []byte
	FinalizedAt time.Time
}

// Store is the append-only persistence abstraction.
//
// Implementations must be safe for concurrent use. Every method is
// best-effort from the engine's perspective: an error is logged by the caller
// and never propagated into session behavior.
type Store interface {
	// CreateSession records the start of a session.
	CreateSession(ctx context.Context, rec SessionRecord) error

	// AppendTurn records one finished turn. Exactly one call per turn.
	AppendTurn(ctx context.Context, rec TurnRecord) error

	// WriteScore records one shadow analysis score.
	WriteScore(ctx context.Context, rec ScoreRecord) error

	// WriteReport records the final evaluation report.
	WriteReport(ctx context.Context, rec ReportRecord) error

	// Close releases underlying resources.
	Close()
}
