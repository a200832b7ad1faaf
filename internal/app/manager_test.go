package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cam-hm/opik-career-agent/internal/config"
	"github.com/cam-hm/opik-career-agent/internal/interview"
	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
	llmmock "github.com/cam-hm/opik-career-agent/pkg/provider/llm/mock"
	storemock "github.com/cam-hm/opik-career-agent/pkg/store/mock"
)

func newManager(t *testing.T, st *storemock.Store) *Manager {
	t.Helper()
	cat, err := stage.New([]config.StageConfig{
		{ID: "technical", Rubric: []string{"depth", "technical_accuracy"}, MaxTurns: 4},
	})
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}

	cfg := Config{
		Reasoning:     &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Tell me more."}},
		ReasoningName: "mock-llm",
		Shadow:        &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"depth": 80, "technical_accuracy": 80}`}},
		ShadowName:    "mock-shadow",
		Catalog:       cat,
	}
	if st != nil {
		cfg.Store = st
	}
	m := NewManager(cfg)
	t.Cleanup(m.Close)
	return m
}

func TestManager_SessionLifecycle(t *testing.T) {
	t.Parallel()
	st := &storemock.Store{}
	m := newManager(t, st)

	view, err := m.CreateSession(context.Background(), "cand-1", "Backend Engineer")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if view.Status != interview.StatusInProgress {
		t.Errorf("status = %s, want in_progress", view.Status)
	}
	if view.SessionID == "" {
		t.Fatal("session ID must be assigned")
	}

	turn, err := m.SubmitUtterance(context.Background(), view.SessionID, "I designed a sharded ingestion pipeline")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if turn.Seq != 1 || turn.Status != interview.TurnDelivered {
		t.Errorf("turn = %+v", turn)
	}

	report, err := m.Finalize(context.Background(), view.SessionID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !report.Valid {
		t.Error("report should be valid after a delivered turn")
	}

	got, err := m.Status(view.SessionID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestManager_UnknownSession(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)

	if _, err := m.SubmitUtterance(context.Background(), "nope", "hi"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("SubmitUtterance = %v, want ErrUnknownSession", err)
	}
	if _, err := m.Status("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Status = %v, want ErrUnknownSession", err)
	}
	if _, err := m.Finalize(context.Background(), "nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Finalize = %v, want ErrUnknownSession", err)
	}
	if err := m.Abandon(context.Background(), "nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Abandon = %v, want ErrUnknownSession", err)
	}
}

func TestManager_PersistsRecords(t *testing.T) {
	t.Parallel()
	st := &storemock.Store{}
	m := newManager(t, st)

	view, err := m.CreateSession(context.Background(), "cand-2", "SRE")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(st.Sessions) != 1 || st.Sessions[0].CandidateID != "cand-2" {
		t.Fatalf("session records = %+v", st.Sessions)
	}

	if _, err := m.SubmitUtterance(context.Background(), view.SessionID, "a long enough answer about incident response"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if st.TurnCount() != 1 {
		t.Errorf("turn records = %d, want 1", st.TurnCount())
	}

	if _, err := m.Finalize(context.Background(), view.SessionID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	// Finalize drains shadow scores before the report, so the score record is
	// written by now.
	if len(st.Scores) != 1 {
		t.Fatalf("score records = %d, want 1", len(st.Scores))
	}
	if st.Scores[0].Dimensions["depth"] != 80 {
		t.Errorf("score dimensions = %+v", st.Scores[0].Dimensions)
	}
	if len(st.Reports) != 1 || st.Reports[0].Outcome != string(interview.StatusCompleted) {
		t.Fatalf("report records = %+v", st.Reports)
	}

	// A second Finalize returns the cached report without a second write.
	if _, err := m.Finalize(context.Background(), view.SessionID); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if len(st.Reports) != 1 {
		t.Errorf("report records = %d after repeated finalize, want 1", len(st.Reports))
	}
}

func TestManager_StoreFailureDoesNotAffectSession(t *testing.T) {
	t.Parallel()
	st := &storemock.Store{
		CreateSessionErr: errors.New("connection refused"),
		AppendTurnErr:    errors.New("connection refused"),
		WriteScoreErr:    errors.New("connection refused"),
		WriteReportErr:   errors.New("connection refused"),
	}
	m := newManager(t, st)

	view, err := m.CreateSession(context.Background(), "cand-3", "Data Engineer")
	if err != nil {
		t.Fatalf("CreateSession must survive store failure: %v", err)
	}
	turn, err := m.SubmitUtterance(context.Background(), view.SessionID, "a long enough answer")
	if err != nil {
		t.Fatalf("SubmitUtterance must survive store failure: %v", err)
	}
	if turn.Status != interview.TurnDelivered {
		t.Errorf("turn status = %s, want delivered", turn.Status)
	}
	if _, err := m.Finalize(context.Background(), view.SessionID); err != nil {
		t.Fatalf("Finalize must survive store failure: %v", err)
	}
}

func TestManager_AbandonThenFinalize(t *testing.T) {
	t.Parallel()
	st := &storemock.Store{}
	m := newManager(t, st)

	view, err := m.CreateSession(context.Background(), "cand-4", "Platform Engineer")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := m.Abandon(context.Background(), view.SessionID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	got, err := m.Status(view.SessionID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != interview.StatusAbandoned {
		t.Errorf("status = %s, want abandoned", got.Status)
	}

	report, err := m.Finalize(context.Background(), view.SessionID)
	if err != nil {
		t.Fatalf("Finalize after abandon: %v", err)
	}
	if report.Valid {
		t.Error("zero-turn abandoned session must yield an invalid report")
	}
	if len(st.Reports) != 1 || st.Reports[0].Outcome != string(interview.StatusAbandoned) {
		t.Errorf("report records = %+v, want one abandoned-outcome record", st.Reports)
	}
}

func TestManager_EvictsTerminalSessions(t *testing.T) {
	t.Parallel()
	cat, err := stage.New([]config.StageConfig{
		{ID: "technical", Rubric: []string{"depth", "technical_accuracy"}, MaxTurns: 4},
	})
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	m := NewManager(Config{
		Reasoning:         &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Tell me more."}},
		ReasoningName:     "mock-llm",
		Catalog:           cat,
		TerminalRetention: 20 * time.Millisecond,
	})
	t.Cleanup(m.Close)

	view, err := m.CreateSession(context.Background(), "cand-5", "Backend Engineer")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := m.Finalize(context.Background(), view.SessionID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// The handle lingers for the retention window, then leaves the registry.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := m.Status(view.SessionID); errors.Is(err, ErrUnknownSession) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("finalized session was never evicted from the registry")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.Finalize(context.Background(), view.SessionID); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Finalize after eviction = %v, want ErrUnknownSession", err)
	}

	// Live sessions are untouched by eviction.
	live, err := m.CreateSession(context.Background(), "cand-6", "Backend Engineer")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got, err := m.Status(live.SessionID); err != nil || got.Status != interview.StatusInProgress {
		t.Errorf("live session status = %+v, %v; want in_progress", got, err)
	}
}

func TestManager_IsolatesSessions(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)

	a, err := m.CreateSession(context.Background(), "cand-a", "Role A")
	if err != nil {
		t.Fatalf("CreateSession a: %v", err)
	}
	b, err := m.CreateSession(context.Background(), "cand-b", "Role B")
	if err != nil {
		t.Fatalf("CreateSession b: %v", err)
	}
	if a.SessionID == b.SessionID {
		t.Fatal("sessions share an ID")
	}

	if _, err := m.SubmitUtterance(context.Background(), a.SessionID, "an answer for session a"); err != nil {
		t.Fatalf("SubmitUtterance a: %v", err)
	}

	gotA, _ := m.Status(a.SessionID)
	gotB, _ := m.Status(b.SessionID)
	if gotA.TurnCount != 1 || gotB.TurnCount != 0 {
		t.Errorf("turn counts = %d/%d, want 1/0", gotA.TurnCount, gotB.TurnCount)
	}

	start := time.Now()
	if err := m.Abandon(context.Background(), a.SessionID); err != nil {
		t.Fatalf("Abandon a: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Abandon took %v", elapsed)
	}
	if gotB, _ = m.Status(b.SessionID); gotB.Status != interview.StatusInProgress {
		t.Errorf("session b status = %s after abandoning a, want in_progress", gotB.Status)
	}
}
