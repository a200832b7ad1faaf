// Package app hosts the session manager: the registry that owns every live
// interview controller and binds the engine to providers, persistence, and
// metrics.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cam-hm/opik-career-agent/internal/config"
	"github.com/cam-hm/opik-career-agent/internal/interview"
	"github.com/cam-hm/opik-career-agent/internal/observe"
	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
	"github.com/cam-hm/opik-career-agent/pkg/provider/tts"
	"github.com/cam-hm/opik-career-agent/pkg/store"
)

// ErrUnknownSession is returned for a session ID not in the registry.
var ErrUnknownSession = errors.New("unknown session")

// persistTimeout bounds each best-effort store write.
const persistTimeout = 5 * time.Second

// defaultTerminalRetention is how long a terminal session's handle stays in
// the registry for idempotent re-reads before it is evicted.
const defaultTerminalRetention = 5 * time.Minute

// Config wires a Manager.
type Config struct {
	// Reasoning drives interviewer turns and the report narrative. Required.
	Reasoning     llm.Provider
	ReasoningName string

	// Shadow drives competency analysis. Nil reuses Reasoning.
	Shadow     llm.Provider
	ShadowName string

	// Synthesis converts replies to audio. Nil runs text-only.
	Synthesis     tts.Provider
	SynthesisName string
	Voice         tts.VoiceProfile

	// Catalog is the stage progression shared by all sessions. Required.
	Catalog *stage.Catalog

	// Store persists session history. Nil disables persistence; sessions are
	// memory-only.
	Store store.Store

	// Engine and Difficulty carry the pipeline and adaptation tunables.
	Engine     config.EngineConfig
	Difficulty config.DifficultyConfig

	// TerminalRetention is how long a finished session stays readable in the
	// registry before eviction. Zero selects 5 minutes.
	TerminalRetention time.Duration

	// Metrics receives instrumentation. Nil disables recording.
	Metrics *observe.Metrics
}

// handle pairs a controller with its manager-side bookkeeping.
type handle struct {
	ctrl *interview.Controller

	// released guards the ActiveSessions decrement: a session leaves the
	// gauge exactly once no matter how it terminates.
	released bool

	// reported guards report persistence: one WriteReport per session.
	reported bool
}

// Manager owns the live session registry. One Manager exists per process; it
// is safe for concurrent use.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*handle
}

// NewManager creates an empty Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*handle),
	}
}

// CreateSession builds and starts a new session and returns its initial
// status. Stage configuration problems surface here as a *CompositionError;
// the session is not registered in that case.
func (m *Manager) CreateSession(ctx context.Context, candidateID, targetRole string) (interview.StatusView, error) {
	id := uuid.NewString()

	shadow := m.cfg.Shadow
	shadowName := m.cfg.ShadowName
	if shadow == nil {
		shadow = m.cfg.Reasoning
		shadowName = m.cfg.ReasoningName
	}

	pipeline := interview.NewPipeline(
		interview.NewComposer(m.cfg.Engine.RecencyWindow),
		interview.PipelineConfig{
			Reasoning:        m.cfg.Reasoning,
			ReasoningName:    m.cfg.ReasoningName,
			Synthesis:        m.cfg.Synthesis,
			SynthesisName:    m.cfg.SynthesisName,
			Voice:            m.cfg.Voice,
			ReasoningTimeout: m.cfg.Engine.ReasoningTimeout.Std(),
			SynthesisTimeout: m.cfg.Engine.SynthesisTimeout.Std(),
			MaxRetries:       m.cfg.Engine.MaxRetries,
			Metrics:          m.cfg.Metrics,
		},
	)
	analyzer := interview.NewAnalyzer(interview.AnalyzerConfig{
		Provider:     shadow,
		ProviderName: shadowName,
		Timeout:      m.cfg.Engine.ShadowTimeout.Std(),
		Metrics:      m.cfg.Metrics,
	})
	aggregator := interview.NewAggregator(interview.AggregatorConfig{
		Provider: m.cfg.Reasoning,
	})

	ctrl := interview.NewController(interview.ControllerConfig{
		SessionID:   id,
		CandidateID: candidateID,
		TargetRole:  targetRole,
		Catalog:     m.cfg.Catalog,
		Pipeline:    pipeline,
		Analyzer:    analyzer,
		Aggregator:  aggregator,
		Difficulty: interview.DifficultyConfig{
			Window:              m.cfg.Difficulty.Window,
			IncreaseThreshold:   m.cfg.Difficulty.IncreaseThreshold,
			DecreaseThreshold:   m.cfg.Difficulty.DecreaseThreshold,
			ConsecutiveRequired: m.cfg.Difficulty.ConsecutiveRequired,
		},
		OnTurn:  func(t interview.Turn) { m.persistTurn(id, t) },
		OnScore: func(sc interview.CompetencyScore) { m.persistScore(id, sc) },
		Metrics: m.cfg.Metrics,
	})

	if err := ctrl.Start(ctx); err != nil {
		ctrl.Close()
		return interview.StatusView{}, fmt.Errorf("app: start session: %w", err)
	}

	view := ctrl.Status()
	if m.cfg.Store != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := m.cfg.Store.CreateSession(pctx, store.SessionRecord{
			ID:          id,
			CandidateID: candidateID,
			TargetRole:  targetRole,
			StageID:     view.StageID,
			StartedAt:   view.CreatedAt,
		}); err != nil {
			observe.Logger(ctx).Warn("session persist failed, continuing in-memory",
				"session_id", id, "error", err)
		}
	}

	m.mu.Lock()
	m.sessions[id] = &handle{ctrl: ctrl}
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	return view, nil
}

// lookup returns the handle for id.
func (m *Manager) lookup(id string) (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	return h, nil
}

// SubmitUtterance runs one turn for the session.
func (m *Manager) SubmitUtterance(ctx context.Context, id, text string) (interview.Turn, error) {
	h, err := m.lookup(id)
	if err != nil {
		return interview.Turn{}, err
	}
	return h.ctrl.SubmitUtterance(ctx, text)
}

// Status returns a snapshot of the session state.
func (m *Manager) Status(id string) (interview.StatusView, error) {
	h, err := m.lookup(id)
	if err != nil {
		return interview.StatusView{}, err
	}
	return h.ctrl.Status(), nil
}

// Finalize completes the session and returns its evaluation report. Repeated
// calls return the same cached report; the report is persisted on first
// computation only. The session stays readable for the retention window,
// then leaves the registry.
func (m *Manager) Finalize(ctx context.Context, id string) (*interview.EvaluationReport, error) {
	h, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	report, err := h.ctrl.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	m.release(ctx, id, h)

	m.mu.Lock()
	first := !h.reported
	h.reported = true
	m.mu.Unlock()
	if first {
		m.persistReport(ctx, id, h.ctrl.Status(), report)
	}
	return report, nil
}

// Abandon marks the session abandoned. Its history remains available for
// Finalize.
func (m *Manager) Abandon(ctx context.Context, id string) error {
	h, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := h.ctrl.Abandon(); err != nil {
		return err
	}
	m.release(ctx, id, h)
	return nil
}

// release decrements the active-session gauge once per session, schedules the
// handle's eviction from the registry, and reports whether this call was the
// one that released it.
func (m *Manager) release(ctx context.Context, id string, h *handle) bool {
	m.mu.Lock()
	first := !h.released
	h.released = true
	m.mu.Unlock()

	if first {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.ActiveSessions.Add(ctx, -1)
		}
		retention := m.cfg.TerminalRetention
		if retention <= 0 {
			retention = defaultTerminalRetention
		}
		time.AfterFunc(retention, func() { m.evict(id) })
	}
	return first
}

// evict removes a terminal session from the registry and releases its
// controller resources. A session already removed (shutdown, earlier
// eviction) is a no-op.
func (m *Manager) evict(id string) {
	m.mu.Lock()
	h, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		h.ctrl.Close()
	}
}

// Close abandons and closes every live session. Called on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*handle)
	m.mu.Unlock()

	for id, h := range sessions {
		_ = h.ctrl.Abandon()
		m.release(context.Background(), id, h)
		h.ctrl.Close()
	}
}

// persistTurn writes one turn record. Best-effort: failures are logged, never
// propagated into session behavior.
func (m *Manager) persistTurn(sessionID string, t interview.Turn) {
	if m.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	audioBytes := 0
	if t.Audio != nil {
		audioBytes = len(t.Audio.Data)
	}
	err := m.cfg.Store.AppendTurn(ctx, store.TurnRecord{
		SessionID:  sessionID,
		Seq:        t.Seq,
		Utterance:  t.Utterance,
		Response:   t.Response,
		Status:     string(t.Status),
		StageID:    t.StageID,
		Tier:       string(t.Tier),
		AudioBytes: audioBytes,
		StartedAt:  t.StartedAt,
		EndedAt:    t.EndedAt,
	})
	if err != nil {
		observe.Logger(ctx).Warn("turn persist failed",
			"session_id", sessionID, "seq", t.Seq, "error", err)
	}
}

// persistScore writes one shadow score record. Best-effort.
func (m *Manager) persistScore(sessionID string, sc interview.CompetencyScore) {
	if m.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	dims := make(map[string]int, len(sc.Dimensions))
	for dim, ds := range sc.Dimensions {
		dims[dim] = ds.Score
	}
	err := m.cfg.Store.WriteScore(ctx, store.ScoreRecord{
		SessionID:  sessionID,
		TurnSeq:    sc.TurnSeq,
		Dimensions: dims,
		Composite:  sc.Composite,
		ScoredAt:   time.Now(),
	})
	if err != nil {
		observe.Logger(ctx).Warn("score persist failed",
			"session_id", sessionID, "turn_seq", sc.TurnSeq, "error", err)
	}
}

// persistReport writes the final evaluation report. Best-effort.
func (m *Manager) persistReport(ctx context.Context, sessionID string, view interview.StatusView, report *interview.EvaluationReport) {
	if m.cfg.Store == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		observe.Logger(ctx).Warn("report encode failed", "session_id", sessionID, "error", err)
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err = m.cfg.Store.WriteReport(pctx, store.ReportRecord{
		SessionID:   sessionID,
		Outcome:     string(view.Status),
		ReportJSON:  raw,
		FinalizedAt: time.Now(),
	})
	if err != nil {
		observe.Logger(ctx).Warn("report persist failed",
			"session_id", sessionID, "error", err)
	}
}
