package interview_test

import (
	"testing"

	"github.com/cam-hm/opik-career-agent/internal/interview"
	"github.com/cam-hm/opik-career-agent/internal/stage"
)

func score(composite float64) interview.CompetencyScore {
	return interview.CompetencyScore{Composite: composite}
}

func newDifficulty(start, min, max stage.Tier) *interview.DifficultyController {
	return interview.NewDifficultyController(interview.DifficultyConfig{
		Window:              3,
		IncreaseThreshold:   75,
		DecreaseThreshold:   50,
		ConsecutiveRequired: 3,
	}, start, min, max)
}

func TestDifficulty_EscalatesAfterConsecutiveHighScores(t *testing.T) {
	t.Parallel()
	d := newDifficulty(stage.TierIntermediate, stage.TierFoundational, stage.TierExpert)

	d.Update(score(90))
	d.Update(score(90))
	if d.Tier() != stage.TierIntermediate {
		t.Fatalf("tier changed after 2 high scores, want hold at intermediate, got %s", d.Tier())
	}
	got := d.Update(score(90))
	if got != stage.TierAdvanced {
		t.Fatalf("tier = %s after 3 consecutive 90s, want advanced", got)
	}
}

func TestDifficulty_DeEscalatesAfterConsecutiveLowScores(t *testing.T) {
	t.Parallel()
	d := newDifficulty(stage.TierAdvanced, stage.TierFoundational, stage.TierExpert)

	d.Update(score(30))
	d.Update(score(30))
	got := d.Update(score(30))
	if got != stage.TierIntermediate {
		t.Fatalf("tier = %s after 3 consecutive 30s, want intermediate", got)
	}
}

func TestDifficulty_HysteresisPreventsOscillation(t *testing.T) {
	t.Parallel()
	d := newDifficulty(stage.TierIntermediate, stage.TierFoundational, stage.TierExpert)

	// Alternating strong and weak answers never sustain a streak.
	for i := 0; i < 12; i++ {
		if i%2 == 0 {
			d.Update(score(95))
		} else {
			d.Update(score(20))
		}
		if d.Tier() != stage.TierIntermediate {
			t.Fatalf("tier moved to %s on alternating scores at step %d", d.Tier(), i)
		}
	}
}

func TestDifficulty_ClampedToStageBounds(t *testing.T) {
	t.Parallel()
	d := newDifficulty(stage.TierIntermediate, stage.TierFoundational, stage.TierAdvanced)

	// A long all-high streak saturates at the stage maximum.
	for i := 0; i < 20; i++ {
		d.Update(score(100))
	}
	if d.Tier() != stage.TierAdvanced {
		t.Errorf("tier = %s after all-high streak, want clamp at advanced", d.Tier())
	}

	// And a long all-low streak saturates at the minimum.
	for i := 0; i < 30; i++ {
		d.Update(score(0))
	}
	if d.Tier() != stage.TierFoundational {
		t.Errorf("tier = %s after all-low streak, want clamp at foundational", d.Tier())
	}
}

func TestDifficulty_EscalationResetsStreaks(t *testing.T) {
	t.Parallel()
	d := newDifficulty(stage.TierFoundational, stage.TierFoundational, stage.TierExpert)

	for i := 0; i < 3; i++ {
		d.Update(score(90))
	}
	if d.Tier() != stage.TierIntermediate {
		t.Fatalf("tier = %s, want intermediate after first escalation", d.Tier())
	}
	// The next high score starts a fresh streak: no immediate second jump.
	d.Update(score(90))
	if d.Tier() != stage.TierIntermediate {
		t.Errorf("tier = %s, want intermediate; escalation must reset the counter", d.Tier())
	}
}

func TestDifficulty_SetStageReclamps(t *testing.T) {
	t.Parallel()
	d := newDifficulty(stage.TierExpert, stage.TierFoundational, stage.TierExpert)

	d.SetStage(stage.TierFoundational, stage.TierIntermediate)
	if d.Tier() != stage.TierIntermediate {
		t.Errorf("tier = %s after stage change, want re-clamp to intermediate", d.Tier())
	}
}

func TestDifficulty_StateSnapshot(t *testing.T) {
	t.Parallel()
	d := newDifficulty(stage.TierIntermediate, stage.TierFoundational, stage.TierExpert)

	d.Update(score(80))
	d.Update(score(90))
	st := d.State()
	if st.ScoredTurns != 2 {
		t.Errorf("ScoredTurns = %d, want 2", st.ScoredTurns)
	}
	if st.RollingAvg != 85 {
		t.Errorf("RollingAvg = %.1f, want 85", st.RollingAvg)
	}
	if st.UpStreak != 2 {
		t.Errorf("UpStreak = %d, want 2", st.UpStreak)
	}
}
