package interview_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cam-hm/opik-career-agent/internal/config"
	"github.com/cam-hm/opik-career-agent/internal/interview"
	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
	llmmock "github.com/cam-hm/opik-career-agent/pkg/provider/llm/mock"
)

// testCatalog builds a catalogue from the given stage configs, or the
// default catalogue when none are given.
func testCatalog(t *testing.T, cfgs ...config.StageConfig) *stage.Catalog {
	t.Helper()
	cat, err := stage.New(cfgs)
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	return cat
}

// newTestController wires a controller around the given providers with short
// timeouts. scoreCh (when non-nil) receives a signal per applied shadow
// score so tests can wait deterministically.
func newTestController(t *testing.T, cat *stage.Catalog, reasoning, shadow llm.Provider, scoreCh chan<- interview.CompetencyScore) *interview.Controller {
	t.Helper()

	pipeline := interview.NewPipeline(interview.NewComposer(6), interview.PipelineConfig{
		Reasoning:        reasoning,
		ReasoningName:    "mock-llm",
		ReasoningTimeout: time.Second,
		MaxRetries:       1,
	})
	analyzer := interview.NewAnalyzer(interview.AnalyzerConfig{
		Provider: shadow,
		Timeout:  time.Second,
	})
	var onScore func(interview.CompetencyScore)
	if scoreCh != nil {
		onScore = func(sc interview.CompetencyScore) { scoreCh <- sc }
	}

	c := interview.NewController(interview.ControllerConfig{
		SessionID:  "s1",
		TargetRole: "Backend Engineer",
		Catalog:    cat,
		Pipeline:   pipeline,
		Analyzer:   analyzer,
		Aggregator: interview.NewAggregator(interview.AggregatorConfig{}),
		Difficulty: interview.DifficultyConfig{
			Window:              3,
			IncreaseThreshold:   75,
			DecreaseThreshold:   50,
			ConsecutiveRequired: 3,
		},
		OnScore: onScore,
	})
	t.Cleanup(c.Close)
	return c
}

func okReasoning() *llmmock.Provider {
	return &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Tell me more about that."},
	}
}

func TestController_StartTwice(t *testing.T) {
	t.Parallel()
	c := newTestController(t, testCatalog(t), okReasoning(), &llmmock.Provider{}, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, interview.ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestController_SubmitBeforeStart(t *testing.T) {
	t.Parallel()
	c := newTestController(t, testCatalog(t), okReasoning(), &llmmock.Provider{}, nil)

	if _, err := c.SubmitUtterance(context.Background(), "hello"); !errors.Is(err, interview.ErrNotStarted) {
		t.Fatalf("SubmitUtterance = %v, want ErrNotStarted", err)
	}
}

func TestController_HappyPathTurn(t *testing.T) {
	t.Parallel()
	reasoning := okReasoning()
	c := newTestController(t, testCatalog(t), reasoning, &llmmock.Provider{}, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	turn, err := c.SubmitUtterance(context.Background(), "I have eight years of backend experience")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if turn.Seq != 1 {
		t.Errorf("Seq = %d, want 1", turn.Seq)
	}
	if turn.Status != interview.TurnDelivered {
		t.Errorf("Status = %s, want delivered", turn.Status)
	}
	if turn.Response != "Tell me more about that." {
		t.Errorf("Response = %q", turn.Response)
	}

	view := c.Status()
	if view.Status != interview.StatusInProgress || view.TurnCount != 1 {
		t.Errorf("view = %+v", view)
	}
}

func TestController_EmptyUtteranceSkipped(t *testing.T) {
	t.Parallel()
	reasoning := okReasoning()
	c := newTestController(t, testCatalog(t), reasoning, &llmmock.Provider{}, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	turn, err := c.SubmitUtterance(context.Background(), "   ")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if turn.Status != interview.TurnSkipped {
		t.Errorf("Status = %s, want skipped", turn.Status)
	}
	if reasoning.CallCount() != 0 {
		t.Errorf("reasoning called %d times for empty utterance, want 0", reasoning.CallCount())
	}
}

func TestController_ConcurrentSubmitRejected(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	var enteredOnce sync.Once
	reasoning := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest, attempt int) (*llm.CompletionResponse, error) {
			enteredOnce.Do(func() { close(entered) })
			<-release
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	c := newTestController(t, testCatalog(t), reasoning, &llmmock.Provider{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.SubmitUtterance(context.Background(), "first answer"); err != nil {
			t.Errorf("first SubmitUtterance: %v", err)
		}
	}()

	<-entered
	if _, err := c.SubmitUtterance(context.Background(), "second answer"); !errors.Is(err, interview.ErrTurnInProgress) {
		t.Errorf("concurrent SubmitUtterance = %v, want ErrTurnInProgress", err)
	}
	close(release)
	<-done

	// After the first turn resolves, submissions work again.
	if _, err := c.SubmitUtterance(context.Background(), "third answer"); err != nil {
		t.Errorf("SubmitUtterance after turn resolved: %v", err)
	}
}

func TestController_GaplessSequenceAcrossFailures(t *testing.T) {
	t.Parallel()
	reasoning := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest, attempt int) (*llm.CompletionResponse, error) {
			// Attempts 2 and 3 belong to the second turn (attempt + retry):
			// fail both so the turn degrades to Failed.
			if attempt == 2 || attempt == 3 {
				return nil, errors.New("timeout awaiting response")
			}
			return &llm.CompletionResponse{Content: "next question"}, nil
		},
	}
	c := newTestController(t, testCatalog(t), reasoning, &llmmock.Provider{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var statuses []interview.TurnStatus
	for i := 0; i < 3; i++ {
		turn, err := c.SubmitUtterance(context.Background(), "a sufficiently long answer")
		if err != nil {
			t.Fatalf("SubmitUtterance %d: %v", i, err)
		}
		if turn.Seq != i+1 {
			t.Errorf("turn %d Seq = %d, want %d", i, turn.Seq, i+1)
		}
		statuses = append(statuses, turn.Status)
	}

	want := []interview.TurnStatus{interview.TurnDelivered, interview.TurnFailed, interview.TurnDelivered}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("turn %d status = %s, want %s", i+1, statuses[i], want[i])
		}
	}
	if c.Status().Status != interview.StatusInProgress {
		t.Error("a failed turn must not end the session")
	}
}

func TestController_SubmitAfterAbandon(t *testing.T) {
	t.Parallel()
	c := newTestController(t, testCatalog(t), okReasoning(), &llmmock.Provider{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Abandon(); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := c.SubmitUtterance(context.Background(), "hello there"); !errors.Is(err, interview.ErrSessionClosed) {
		t.Fatalf("SubmitUtterance after abandon = %v, want ErrSessionClosed", err)
	}
	if err := c.Abandon(); !errors.Is(err, interview.ErrSessionClosed) {
		t.Fatalf("second Abandon = %v, want ErrSessionClosed", err)
	}
}

func TestController_AbandonCancelsInFlightTurn(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	reasoning := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest, attempt int) (*llm.CompletionResponse, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := newTestController(t, testCatalog(t), reasoning, &llmmock.Provider{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan interview.Turn, 1)
	go func() {
		turn, err := c.SubmitUtterance(context.Background(), "a long enough answer")
		if err != nil {
			t.Errorf("SubmitUtterance: %v", err)
		}
		done <- turn
	}()

	<-entered
	if err := c.Abandon(); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	select {
	case turn := <-done:
		if turn.Status != interview.TurnFailed {
			t.Errorf("in-flight turn status = %s, want failed", turn.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abandon did not cancel the in-flight turn")
	}
}

func TestController_FinalizeIdempotent(t *testing.T) {
	t.Parallel()
	c := newTestController(t, testCatalog(t), okReasoning(), &llmmock.Provider{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.SubmitUtterance(context.Background(), "a sufficiently long answer"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	first, err := c.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	second, err := c.Finalize(context.Background())
	if err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if first != second {
		t.Error("Finalize must return the identical cached report")
	}
	if c.Status().Status != interview.StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status().Status)
	}
}

func TestController_AbandonWithZeroTurnsYieldsInvalidReport(t *testing.T) {
	t.Parallel()
	c := newTestController(t, testCatalog(t), okReasoning(), &llmmock.Provider{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Abandon(); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	report, err := c.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if report.Valid {
		t.Error("report should be invalid with zero turns")
	}
	if report.OverallScore != 0 || len(report.Strengths) != 0 || len(report.Weaknesses) != 0 {
		t.Errorf("report = %+v, want zeroed statistics", report)
	}
}

func TestController_StageAdvancesOnMaxTurns(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t,
		config.StageConfig{ID: "first", Rubric: []string{"depth"}, MaxTurns: 1, MinTier: "foundational", MaxTier: "intermediate"},
		config.StageConfig{ID: "second", Rubric: []string{"depth"}, MaxTurns: 1, MinTier: "advanced", MaxTier: "expert"},
	)
	c := newTestController(t, cat, okReasoning(), &llmmock.Provider{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := c.SubmitUtterance(context.Background(), "a sufficiently long answer"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	view := c.Status()
	if view.StageID != "second" || view.StageIndex != 1 {
		t.Fatalf("stage = %q index %d, want second/1", view.StageID, view.StageIndex)
	}
	// Tier carried over and re-clamped to the new stage's bounds.
	if view.Tier != stage.TierAdvanced {
		t.Errorf("tier = %s after stage change, want advanced (re-clamped)", view.Tier)
	}

	if _, err := c.SubmitUtterance(context.Background(), "another sufficiently long answer"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if got := c.Status().Status; got != interview.StatusCompleted {
		t.Errorf("status = %s after final stage exhausted, want completed", got)
	}
}

func TestController_ShadowScoresDriveDifficulty(t *testing.T) {
	t.Parallel()
	shadow := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"technical_accuracy": 90, "problem_solving": 90, "depth": 90, "system_design": 90}`},
	}
	scoreCh := make(chan interview.CompetencyScore, 8)
	cat := testCatalog(t, config.StageConfig{
		ID:        "technical",
		Rubric:    []string{"technical_accuracy", "problem_solving", "depth", "system_design"},
		MinTier:   "foundational",
		MaxTier:   "expert",
		StartTier: "intermediate",
		MaxTurns:  10,
	})
	c := newTestController(t, cat, okReasoning(), shadow, scoreCh)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.SubmitUtterance(context.Background(), "a detailed, thorough answer about system design"); err != nil {
			t.Fatalf("SubmitUtterance %d: %v", i, err)
		}
		select {
		case <-scoreCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("no shadow score applied for turn %d", i+1)
		}
	}

	if got := c.Status().Tier; got != stage.TierAdvanced {
		t.Errorf("tier = %s after three 90s, want advanced", got)
	}
}

func TestController_FinalizeWaitsForShadowScores(t *testing.T) {
	t.Parallel()
	shadow := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest, attempt int) (*llm.CompletionResponse, error) {
			time.Sleep(100 * time.Millisecond)
			return &llm.CompletionResponse{Content: `{"depth": 80}`}, nil
		},
	}
	cat := testCatalog(t, config.StageConfig{ID: "technical", Rubric: []string{"depth"}, MaxTurns: 10})
	c := newTestController(t, cat, okReasoning(), shadow, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.SubmitUtterance(context.Background(), "a sufficiently long answer"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	// Finalize immediately: the analysis still in flight must land in the
	// report, however the channel hand-off between analyzer and consumer is
	// interleaved.
	report, err := c.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !report.Valid {
		t.Error("report should be valid after a delivered turn")
	}
	if report.ScoredTurns != 1 {
		t.Errorf("ScoredTurns = %d, want 1", report.ScoredTurns)
	}
}

// newSpanTestController mirrors newTestController but with a caller-chosen
// session ID, so recorded spans can be told apart from other tests sharing
// the global tracer provider.
func newSpanTestController(t *testing.T, sessionID string) *interview.Controller {
	t.Helper()
	pipeline := interview.NewPipeline(interview.NewComposer(6), interview.PipelineConfig{
		Reasoning:        okReasoning(),
		ReasoningName:    "mock-llm",
		ReasoningTimeout: time.Second,
		MaxRetries:       1,
	})
	c := interview.NewController(interview.ControllerConfig{
		SessionID:  sessionID,
		TargetRole: "Backend Engineer",
		Catalog:    testCatalog(t),
		Pipeline:   pipeline,
		Analyzer:   interview.NewAnalyzer(interview.AnalyzerConfig{Provider: &llmmock.Provider{}, Timeout: time.Second}),
		Aggregator: interview.NewAggregator(interview.AggregatorConfig{}),
	})
	t.Cleanup(c.Close)
	return c
}

// sessionSpan finds the ended session-level span carrying the given session
// ID attribute, or nil.
func sessionSpan(recorder *tracetest.SpanRecorder, sessionID string) sdktrace.ReadOnlySpan {
	for _, s := range recorder.Ended() {
		if s.Name() != "interview.session" {
			continue
		}
		for _, kv := range s.Attributes() {
			if kv.Key == "session.id" && kv.Value.AsString() == sessionID {
				return s
			}
		}
	}
	return nil
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value, len(s.Attributes()))
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestController_SessionSpanRecordsOutcome(t *testing.T) {
	// Swaps the global tracer provider; not parallel.
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	completed := newSpanTestController(t, "span-completed")
	if err := completed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := completed.SubmitUtterance(context.Background(), "a sufficiently long answer"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if _, err := completed.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	span := sessionSpan(recorder, "span-completed")
	if span == nil {
		t.Fatal("no session span recorded for the completed session")
	}
	attrs := spanAttrs(span)
	if got := attrs["session.outcome"].AsString(); got != string(interview.StatusCompleted) {
		t.Errorf("session.outcome = %q, want %q", got, interview.StatusCompleted)
	}
	if got := attrs["session.turns"].AsInt64(); got != 1 {
		t.Errorf("session.turns = %d, want 1", got)
	}

	abandoned := newSpanTestController(t, "span-abandoned")
	if err := abandoned.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := abandoned.Abandon(); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	span = sessionSpan(recorder, "span-abandoned")
	if span == nil {
		t.Fatal("no session span recorded for the abandoned session")
	}
	if got := spanAttrs(span)["session.outcome"].AsString(); got != string(interview.StatusAbandoned) {
		t.Errorf("session.outcome = %q, want %q", got, interview.StatusAbandoned)
	}
}

func TestController_ShadowLatencyDoesNotDelayTurns(t *testing.T) {
	t.Parallel()
	slowShadow := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest, attempt int) (*llm.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := newTestController(t, testCatalog(t), okReasoning(), slowShadow, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if _, err := c.SubmitUtterance(context.Background(), "a sufficiently long answer"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("turn took %v; shadow latency must not delay delivery", elapsed)
	}
}
