// Package mock provides a test double for the store.Store interface.
//
// Use Store to verify the records the engine writes. Configure the Err fields
// to simulate storage failures; the engine must log and continue.
package mock

import (
	"context"
	"sync"

	"github.com/cam-hm/opik-career-agent/pkg/store"
)

// Store is a mock implementation of store.Store that records every write.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CreateSessionErr, if non-nil, is returned from CreateSession.
	CreateSessionErr error

	// AppendTurnErr, if non-nil, is returned from AppendTurn.
	AppendTurnErr error

	// WriteScoreErr, if non-nil, is returned from WriteScore.
	WriteScoreErr error

	// WriteReportErr, if non-nil, is returned from WriteReport.
	WriteReportErr error

	// --- Call records ---

	// Sessions records every CreateSession call in order.
	Sessions []store.SessionRecord

	// Turns records every AppendTurn call in order.
	Turns []store.TurnRecord

	// Scores records every WriteScore call in order.
	Scores []store.ScoreRecord

	// Reports records every WriteReport call in order.
	Reports []store.ReportRecord

	// Closed reports whether Close has been called.
	Closed bool
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// CreateSession records the call and returns CreateSessionErr.
func (s *Store) CreateSession(ctx context.Context, rec store.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions = append(s.Sessions, rec)
	return s.CreateSessionErr
}

// AppendTurn records the call and returns AppendTurnErr.
func (s *Store) AppendTurn(ctx context.Context, rec store.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns = append(s.Turns, rec)
	return s.AppendTurnErr
}

// WriteScore records the call and returns WriteScoreErr.
func (s *Store) WriteScore(ctx context.Context, rec store.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scores = append(s.Scores, rec)
	return s.WriteScoreErr
}

// WriteReport records the call and returns WriteReportErr.
func (s *Store) WriteReport(ctx context.Context, rec store.ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reports = append(s.Reports, rec)
	return s.WriteReportErr
}

// Close marks the store closed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
}

// TurnCount returns the number of AppendTurn calls recorded so far.
func (s *Store) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Turns)
}

// Reset clears all recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions = nil
	s.Turns = nil
	s.Scores = nil
	s.Reports = nil
	s.Closed = false
}
