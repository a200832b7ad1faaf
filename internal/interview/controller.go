package interview

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cam-hm/opik-career-agent/internal/observe"
	"github.com/cam-hm/opik-career-agent/internal/stage"
)

// ControllerConfig wires one session controller.
type ControllerConfig struct {
	// SessionID uniquely identifies the session. Required.
	SessionID string

	// CandidateID and TargetRole describe the interviewee.
	CandidateID string
	TargetRole  string

	// Catalog is the stage progression. Required.
	Catalog *stage.Catalog

	// Pipeline runs turns. Required.
	Pipeline *Pipeline

	// Analyzer runs shadow analysis. Required.
	Analyzer *Analyzer

	// Aggregator builds the final report. Required.
	Aggregator *Aggregator

	// Difficulty holds the adaptive difficulty tunables.
	Difficulty DifficultyConfig

	// OnTurn, when non-nil, is invoked after each turn is appended to the
	// log. Used for best-effort persistence; errors are the hook's problem.
	OnTurn func(Turn)

	// OnScore, when non-nil, is invoked after each shadow score is applied
	// to the difficulty state.
	OnScore func(CompetencyScore)

	// Metrics receives controller instrumentation. Nil disables recording.
	Metrics *observe.Metrics
}

// Controller is the top-level state machine for one interview session. It
// owns the Session exclusively and enforces single-writer discipline: state
// mutations serialize on an internal mutex, and concurrent SubmitUtterance
// calls are rejected with [ErrTurnInProgress] rather than interleaved.
type Controller struct {
	cfg ControllerConfig

	mu         sync.Mutex
	sess       *Session
	difficulty *DifficultyController
	scores     []CompetencyScore
	report     *EvaluationReport

	inFlight   bool
	finalizing bool
	cancelTurn context.CancelFunc

	// span covers the whole session: opened at Start, ended with the
	// terminal outcome when the session closes.
	span trace.Span

	flushReq     chan chan struct{}
	consumerDone chan struct{}
}

// NewController creates a Controller in the NotStarted state. The session's
// stage progression is the catalogue order; difficulty starts at the first
// stage's start tier.
func NewController(cfg ControllerConfig) *Controller {
	first := cfg.Catalog.First()
	diff := NewDifficultyController(cfg.Difficulty, first.StartTier, first.MinTier, first.MaxTier)

	stages := cfg.Catalog.Stages()
	stageIDs := make([]string, len(stages))
	for i, st := range stages {
		stageIDs[i] = st.ID
	}

	return &Controller{
		cfg:        cfg,
		difficulty: diff,
		sess: &Session{
			ID:          cfg.SessionID,
			CandidateID: cfg.CandidateID,
			TargetRole:  cfg.TargetRole,
			StageIDs:    stageIDs,
			Tier:        diff.Tier(),
			Status:      StatusNotStarted,
			CreatedAt:   time.Now(),
		},
	}
}

// Start transitions NotStarted → InProgress and begins consuming shadow
// scores. A malformed stage configuration (empty rubric) fails the session
// before it reaches InProgress. Calling Start twice returns
// [ErrAlreadyStarted].
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Status != StatusNotStarted {
		return ErrAlreadyStarted
	}

	_, c.span = observe.StartSpan(ctx, "interview.session",
		trace.WithAttributes(
			attribute.String("session.id", c.sess.ID),
			attribute.String("session.target_role", c.sess.TargetRole),
		))

	for _, st := range c.cfg.Catalog.Stages() {
		if len(st.Rubric) == 0 {
			c.sess.Status = StatusFailed
			c.sess.CompletedAt = time.Now()
			c.endSpanLocked()
			return &CompositionError{StageID: st.ID, Reason: "rubric has no dimensions"}
		}
	}

	c.sess.Status = StatusInProgress

	c.flushReq = make(chan chan struct{})
	c.consumerDone = make(chan struct{})
	go c.consumeScores()

	observe.Logger(ctx).Info("session started",
		"session_id", c.sess.ID,
		"stage", c.sess.StageIDs[0],
		"tier", string(c.sess.Tier))
	return nil
}

// consumeScores is the sole consumer of the analyzer's score channel. It also
// services flush requests from Finalize: by the time a flush is acknowledged,
// every score received so far has passed through handleScore. Runs until the
// channel closes (controller Close).
func (c *Controller) consumeScores() {
	defer close(c.consumerDone)
	for {
		select {
		case sc, ok := <-c.cfg.Analyzer.Scores():
			if !ok {
				return
			}
			c.handleScore(sc)
		case ack := <-c.flushReq:
			open := c.drainBuffered()
			close(ack)
			if !open {
				return
			}
		}
	}
}

// drainBuffered applies every score already buffered on the channel and
// reports whether the channel is still open.
func (c *Controller) drainBuffered() bool {
	for {
		select {
		case sc, ok := <-c.cfg.Analyzer.Scores():
			if !ok {
				return false
			}
			c.handleScore(sc)
		default:
			return true
		}
	}
}

// endSpanLocked ends the session span with the terminal outcome. Callers hold
// c.mu. The span ends exactly once; later calls are no-ops.
func (c *Controller) endSpanLocked() {
	if c.span == nil {
		return
	}
	c.span.SetAttributes(
		attribute.String("session.outcome", string(c.sess.Status)),
		attribute.Int("session.turns", len(c.sess.Turns)),
	)
	c.span.End()
	c.span = nil
}

// handleScore applies one shadow score to the difficulty state. Scores for
// terminal sessions are discarded: the session ended before the analysis
// caught up.
func (c *Controller) handleScore(sc CompetencyScore) {
	c.mu.Lock()
	if c.sess.Status.Terminal() {
		c.mu.Unlock()
		return
	}

	c.scores = append(c.scores, sc)
	prev := c.difficulty.Tier()
	next := c.difficulty.Update(sc)
	c.sess.Tier = next
	c.mu.Unlock()

	if prev != next && c.cfg.Metrics != nil {
		direction := "up"
		if next.Rank() < prev.Rank() {
			direction = "down"
		}
		c.cfg.Metrics.RecordDifficultyChange(context.Background(), direction)
	}
	if c.cfg.OnScore != nil {
		c.cfg.OnScore(sc)
	}
}

// SubmitUtterance runs one turn for the recognized utterance text and
// returns the resulting Turn.
//
// Only legal while InProgress. A second call while a turn is being processed
// returns [ErrTurnInProgress]. An empty utterance appends a Skipped turn
// without touching any provider. The returned turn has already been appended
// to the session log; shadow analysis for it is dispatched and will not
// block.
func (c *Controller) SubmitUtterance(ctx context.Context, text string) (Turn, error) {
	c.mu.Lock()

	switch {
	case c.sess.Status == StatusNotStarted:
		c.mu.Unlock()
		return Turn{}, ErrNotStarted
	case c.sess.Status.Terminal(), c.finalizing:
		c.mu.Unlock()
		return Turn{}, ErrSessionClosed
	case c.inFlight:
		c.mu.Unlock()
		return Turn{}, ErrTurnInProgress
	}

	seq := len(c.sess.Turns) + 1

	if strings.TrimSpace(text) == "" {
		now := time.Now()
		turn := Turn{
			Seq:       seq,
			Utterance: text,
			StageID:   c.currentStageLocked().ID,
			Tier:      c.difficulty.Tier(),
			StartedAt: now,
			EndedAt:   now,
			Status:    TurnSkipped,
		}
		c.sess.Turns = append(c.sess.Turns, turn)
		c.mu.Unlock()
		c.notifyTurn(turn)
		return turn, nil
	}

	st := c.currentStageLocked()
	tier := c.difficulty.Tier()

	turnCtx, cancel := context.WithCancel(ctx)
	c.inFlight = true
	c.cancelTurn = cancel
	c.mu.Unlock()

	turn, err := c.cfg.Pipeline.RunTurn(turnCtx, c.sess, st, tier, seq, text)
	cancel()

	c.mu.Lock()
	c.inFlight = false
	c.cancelTurn = nil

	if err != nil {
		c.mu.Unlock()
		return Turn{}, err
	}

	// Appended exactly once, regardless of retries, and even when the
	// session went terminal mid-turn: the log stays gapless.
	c.sess.Turns = append(c.sess.Turns, turn)

	terminal := c.sess.Status.Terminal()
	if !terminal {
		c.sess.turnsInStage++
		if c.sess.turnsInStage >= st.MaxTurns {
			c.advanceStageLocked(ctx)
		}
	}
	c.mu.Unlock()

	c.notifyTurn(turn)
	if !terminal {
		c.cfg.Analyzer.Dispatch(turn, st)
	}
	return turn, nil
}

// notifyTurn invokes the persistence hook outside the session lock.
func (c *Controller) notifyTurn(turn Turn) {
	if c.cfg.OnTurn != nil {
		c.cfg.OnTurn(turn)
	}
}

// currentStageLocked returns the active stage. Callers hold c.mu.
func (c *Controller) currentStageLocked() stage.Stage {
	st, err := c.cfg.Catalog.StageFor(c.sess.StageIDs[c.sess.StageIndex])
	if err != nil {
		// StageIDs came from the catalogue; a miss is a programming error.
		panic("interview: session references unknown stage: " + err.Error())
	}
	return st
}

// advanceStageLocked moves to the next stage, or completes the session when
// none remains. The difficulty tier carries over, re-clamped to the new
// stage's bounds. Callers hold c.mu.
func (c *Controller) advanceStageLocked(ctx context.Context) {
	next, ok := c.cfg.Catalog.Next(c.sess.StageIDs[c.sess.StageIndex])
	if !ok {
		c.sess.Status = StatusCompleted
		c.sess.CompletedAt = time.Now()
		c.endSpanLocked()
		observe.Logger(ctx).Info("session completed: all stages exhausted",
			"session_id", c.sess.ID, "turns", len(c.sess.Turns))
		return
	}

	c.sess.StageIndex++
	c.sess.turnsInStage = 0
	c.difficulty.SetStage(next.MinTier, next.MaxTier)
	c.sess.Tier = c.difficulty.Tier()

	observe.Logger(ctx).Info("stage advanced",
		"session_id", c.sess.ID,
		"stage", next.ID,
		"tier", string(c.sess.Tier))
}

// Abandon transitions InProgress → Abandoned and cancels any in-flight turn
// so its pipeline stops retrying immediately. In-flight shadow analyses run
// to completion but their results are discarded.
func (c *Controller) Abandon() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.sess.Status == StatusNotStarted:
		return ErrNotStarted
	case c.sess.Status.Terminal():
		return ErrSessionClosed
	}

	c.sess.Status = StatusAbandoned
	c.sess.CompletedAt = time.Now()
	c.endSpanLocked()
	if c.cancelTurn != nil {
		c.cancelTurn()
	}
	return nil
}

// Finalize transitions InProgress → Completed (a no-op when the session is
// already terminal), waits for in-flight shadow analyses, and returns the
// evaluation report. The report is computed once and cached: a second call
// returns the identical report without recomputation.
func (c *Controller) Finalize(ctx context.Context) (*EvaluationReport, error) {
	c.mu.Lock()
	if c.report != nil {
		r := c.report
		c.mu.Unlock()
		return r, nil
	}
	if c.sess.Status == StatusNotStarted {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	c.finalizing = true
	abandoned := c.sess.Status == StatusAbandoned
	c.mu.Unlock()

	// Let dispatched analyses finish and their scores flow through the
	// consumer before the report is cut. Bounded by the analyzer's own
	// timeout. Abandoned sessions skip this: late scores are discarded by
	// policy.
	if !abandoned {
		c.cfg.Analyzer.Wait()
		c.awaitScores()
	}

	c.mu.Lock()
	if c.report != nil {
		r := c.report
		c.mu.Unlock()
		return r, nil
	}
	if c.sess.Status == StatusInProgress {
		c.sess.Status = StatusCompleted
		c.sess.CompletedAt = time.Now()
		c.endSpanLocked()
	}
	scores := make([]CompetencyScore, len(c.scores))
	copy(scores, c.scores)
	c.mu.Unlock()

	report := c.cfg.Aggregator.Finalize(ctx, c.sess, scores)

	c.mu.Lock()
	if c.report == nil {
		c.report = report
	}
	r := c.report
	c.mu.Unlock()

	observe.Logger(ctx).Info("session finalized",
		"session_id", c.sess.ID,
		"valid", r.Valid,
		"overall", r.OverallScore)
	return r, nil
}

// awaitScores hands the consumer a flush request and waits for the ack. The
// consumer is the only receiver on the score channel, so once the ack arrives
// every score it has read — including one taken off the channel just before
// the flush — has been applied. A closed consumer means the channel is
// already drained.
func (c *Controller) awaitScores() {
	if c.consumerDone == nil {
		// Start failed before the consumer launched; nothing to flush.
		return
	}
	ack := make(chan struct{})
	select {
	case c.flushReq <- ack:
		<-ack
	case <-c.consumerDone:
	}
}

// StatusView is a read-only snapshot of the session for status reporting.
type StatusView struct {
	SessionID   string
	CandidateID string
	TargetRole  string
	Status      SessionStatus
	StageID     string
	StageIndex  int
	Tier        stage.Tier
	TurnCount   int
	Difficulty  DifficultyState
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Status returns a snapshot of the session state.
func (c *Controller) Status() StatusView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return StatusView{
		SessionID:   c.sess.ID,
		CandidateID: c.sess.CandidateID,
		TargetRole:  c.sess.TargetRole,
		Status:      c.sess.Status,
		StageID:     c.sess.StageIDs[c.sess.StageIndex],
		StageIndex:  c.sess.StageIndex,
		Tier:        c.sess.Tier,
		TurnCount:   len(c.sess.Turns),
		Difficulty:  c.difficulty.State(),
		CreatedAt:   c.sess.CreatedAt,
		CompletedAt: c.sess.CompletedAt,
	}
}

// Session returns the underlying session for read-only inspection after the
// session is terminal (persistence, tests). Callers must not mutate it.
func (c *Controller) Session() *Session {
	return c.sess
}

// Close releases the controller's background resources: it waits for
// in-flight shadow analyses, closes the score channel, and waits for the
// consumer to drain. Call after the session is terminal.
func (c *Controller) Close() {
	c.cfg.Analyzer.Close()
	if c.consumerDone != nil {
		<-c.consumerDone
	}
}
