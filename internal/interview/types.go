// Package interview implements the interview orchestration engine: the
// session state machine, the per-turn pipeline, asynchronous shadow
// competency analysis, adaptive difficulty, and final evaluation.
//
// One [Controller] exists per active interview session and owns that
// session's state exclusively. Sessions share nothing mutable; the stage
// catalogue and providers are read-only collaborators.
package interview

import (
	"errors"
	"fmt"
	"time"

	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/tts"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not_started"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
	StatusFailed     SessionStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusAbandoned, StatusFailed:
		return true
	}
	return false
}

// TurnStatus is the terminal state of a single turn.
type TurnStatus string

const (
	// TurnDelivered marks a turn whose response reached the candidate.
	// Audio is best-effort: a Delivered turn may be text-only.
	TurnDelivered TurnStatus = "delivered"

	// TurnFailed marks a turn whose reasoning step failed after retry.
	TurnFailed TurnStatus = "failed"

	// TurnSkipped marks a turn whose utterance was empty; no providers were
	// invoked.
	TurnSkipped TurnStatus = "skipped"
)

// Session state errors surfaced synchronously to callers.
var (
	// ErrAlreadyStarted is returned by Start on a session past NotStarted.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotStarted is returned for operations that require InProgress on a
	// session that was never started.
	ErrNotStarted = errors.New("session not started")

	// ErrSessionClosed is returned for operations on a terminal session.
	ErrSessionClosed = errors.New("session closed")

	// ErrTurnInProgress is returned when a second utterance arrives while a
	// turn is still being processed. Callers should retry after the current
	// turn resolves.
	ErrTurnInProgress = errors.New("turn in progress")
)

// CompositionError marks a malformed stage configuration discovered while
// composing a prompt. It is fatal at session start: the session never reaches
// InProgress.
type CompositionError struct {
	StageID string
	Reason  string
}

// Error implements the error interface.
func (e *CompositionError) Error() string {
	return fmt.Sprintf("compose prompt for stage %q: %s", e.StageID, e.Reason)
}

// Session is the in-memory record of one interview. It is owned exclusively
// by a [Controller] and mutated only through its state-transition methods.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// CandidateID identifies the interviewee.
	CandidateID string

	// TargetRole is the role the candidate is interviewing for.
	TargetRole string

	// StageIDs is the ordered stage progression for this session.
	StageIDs []string

	// StageIndex is the index into StageIDs of the active stage.
	// Only ever advances forward.
	StageIndex int

	// Tier is the current difficulty tier.
	Tier stage.Tier

	// Status is the lifecycle state.
	Status SessionStatus

	// CreatedAt and CompletedAt bound the session's lifetime. CompletedAt is
	// zero until the session reaches a terminal state.
	CreatedAt   time.Time
	CompletedAt time.Time

	// Turns is the append-only turn log. Sequence numbers are strictly
	// increasing and gapless.
	Turns []Turn

	// turnsInStage counts turns taken in the active stage, for the
	// max-turns termination rule.
	turnsInStage int
}

// Turn is one candidate-utterance-to-response cycle. Append-only: never
// mutated after creation.
type Turn struct {
	// Seq is the 1-based sequence number, monotonic and gapless within the
	// session.
	Seq int

	// Utterance is the recognized candidate utterance text.
	Utterance string

	// Prompt is the composed instruction payload sent to the reasoning
	// provider. Zero-valued for Skipped turns.
	Prompt PromptPayload

	// Response is the reasoning provider's reply text. Empty for Failed and
	// Skipped turns.
	Response string

	// Audio is the synthesized audio clip, nil when synthesis failed or was
	// not configured (text-only delivery).
	Audio *tts.AudioClip

	// StageID and Tier record the stage and difficulty active for this turn.
	StageID string
	Tier    stage.Tier

	// StartedAt and EndedAt bound the turn's processing time.
	StartedAt time.Time
	EndedAt   time.Time

	// Status is the turn's terminal status.
	Status TurnStatus
}

// DimensionScore is one rubric dimension's shadow score.
type DimensionScore struct {
	// Score is in [0, 100].
	Score int

	// Level is the qualitative band for Score (see RubricLevel).
	Level string
}

// CompetencyScore is the shadow analysis result for one turn, correlated by
// sequence number. A turn may have no score if analysis failed or has not
// completed.
type CompetencyScore struct {
	// TurnSeq correlates the score to its turn.
	TurnSeq int

	// Dimensions maps each rubric dimension to its score.
	Dimensions map[string]DimensionScore

	// Composite is the mean of all dimension scores.
	Composite float64
}

// DimensionSummary is the aggregated outcome for one rubric dimension.
type DimensionSummary struct {
	// Mean is the average score across all scored turns.
	Mean float64 `json:"mean"`

	// Level is the qualitative band for Mean.
	Level string `json:"level"`
}

// EvaluationReport is the final session evaluation. Created once, immutable
// thereafter.
type EvaluationReport struct {
	// Valid is false when the session produced zero Delivered turns; in that
	// case OverallScore is 0 and Strengths/Weaknesses are empty.
	Valid bool `json:"valid"`

	// OverallScore is the mean of available turn composites, in [0, 100].
	OverallScore float64 `json:"overall_score"`

	// Dimensions maps each rubric dimension encountered to its summary.
	Dimensions map[string]DimensionSummary `json:"dimensions"`

	// Strengths lists dimensions whose mean exceeds the strength threshold.
	Strengths []string `json:"strengths"`

	// Weaknesses lists dimensions whose mean falls below the weakness
	// threshold.
	Weaknesses []string `json:"weaknesses"`

	// Narrative is the reasoning-provider summary. Empty when narrative
	// generation failed; statistics are still populated.
	Narrative string `json:"narrative"`

	// DeliveredTurns and ScoredTurns record how much signal the report is
	// built on.
	DeliveredTurns int `json:"delivered_turns"`
	ScoredTurns    int `json:"scored_turns"`
}

// RubricLevel maps a 0-100 score to its qualitative band.
func RubricLevel(score float64) string {
	switch {
	case score >= 85:
		return "exceptional"
	case score >= 70:
		return "strong"
	case score >= 50:
		return "adequate"
	default:
		return "needs_development"
	}
}
