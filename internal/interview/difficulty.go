package interview

import (
	"fmt"

	"github.com/cam-hm/opik-career-agent/internal/stage"
)

// Difficulty defaults applied when the configuration leaves a value unset.
const (
	defaultWindow            = 3
	defaultIncreaseThreshold = 75.0
	defaultDecreaseThreshold = 50.0
	defaultConsecutive       = 3
)

// DifficultyConfig holds the adaptive difficulty tunables.
type DifficultyConfig struct {
	// Window is the rolling composite window size. Zero selects 3.
	Window int

	// IncreaseThreshold and DecreaseThreshold bound the rolling average
	// bands that feed the escalation counters. Zero selects 75 and 50.
	IncreaseThreshold float64
	DecreaseThreshold float64

	// ConsecutiveRequired is how many consecutive window evaluations past a
	// threshold are needed before a tier change. Zero selects 3.
	ConsecutiveRequired int
}

// DifficultyState is a read-only snapshot of the controller's state.
type DifficultyState struct {
	Tier         stage.Tier
	RollingAvg   float64
	UpStreak     int
	DownStreak   int
	ScoredTurns  int
	ChangeReason string
}

// DifficultyController consumes shadow scores and decides the difficulty
// tier for the next turn. It applies hysteresis: a streak toward one
// direction resets the opposite counter, so one strong or weak answer never
// flips the tier.
//
// The controller is not safe for concurrent use; the session controller is
// its single caller.
type DifficultyController struct {
	cfg DifficultyConfig

	tier     stage.Tier
	min, max stage.Tier

	window     []float64
	upStreak   int
	downStreak int
	scored     int
	reason     string
}

// NewDifficultyController creates a controller starting at start, clamped to
// [min, max], with defaults applied to cfg.
func NewDifficultyController(cfg DifficultyConfig, start, min, max stage.Tier) *DifficultyController {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.IncreaseThreshold <= 0 {
		cfg.IncreaseThreshold = defaultIncreaseThreshold
	}
	if cfg.DecreaseThreshold <= 0 {
		cfg.DecreaseThreshold = defaultDecreaseThreshold
	}
	if cfg.ConsecutiveRequired <= 0 {
		cfg.ConsecutiveRequired = defaultConsecutive
	}
	return &DifficultyController{
		cfg:  cfg,
		tier: start.Clamp(min, max),
		min:  min,
		max:  max,
	}
}

// Update consumes one shadow score and returns the tier for the next turn.
// A missing score is no signal: callers simply do not call Update, and the
// rolling average is unaffected.
func (d *DifficultyController) Update(score CompetencyScore) stage.Tier {
	d.scored++
	d.window = append(d.window, score.Composite)
	if len(d.window) > d.cfg.Window {
		d.window = d.window[1:]
	}

	avg := d.rollingAvg()
	switch {
	case avg >= d.cfg.IncreaseThreshold:
		d.upStreak++
		d.downStreak = 0
	case avg <= d.cfg.DecreaseThreshold:
		d.downStreak++
		d.upStreak = 0
	default:
		d.upStreak = 0
		d.downStreak = 0
	}

	if d.upStreak >= d.cfg.ConsecutiveRequired {
		d.shift(d.tier.Up(), fmt.Sprintf("rolling avg %.1f >= %.1f for %d turns", avg, d.cfg.IncreaseThreshold, d.upStreak))
	} else if d.downStreak >= d.cfg.ConsecutiveRequired {
		d.shift(d.tier.Down(), fmt.Sprintf("rolling avg %.1f <= %.1f for %d turns", avg, d.cfg.DecreaseThreshold, d.downStreak))
	}

	return d.tier
}

// shift applies a tier change clamped to the stage bounds. Saturation at a
// bound is a no-op, not an error. Either way the streak counters reset so a
// change decision is consumed exactly once.
func (d *DifficultyController) shift(next stage.Tier, reason string) {
	next = next.Clamp(d.min, d.max)
	if next != d.tier {
		d.tier = next
		d.reason = reason
	}
	d.upStreak = 0
	d.downStreak = 0
}

// SetStage re-bounds the controller when the session advances to a new
// stage: the tier carries over but is clamped to the new bounds, and the
// streak counters reset.
func (d *DifficultyController) SetStage(min, max stage.Tier) {
	d.min, d.max = min, max
	d.tier = d.tier.Clamp(min, max)
	d.upStreak = 0
	d.downStreak = 0
	d.window = d.window[:0]
}

// Tier returns the current difficulty tier.
func (d *DifficultyController) Tier() stage.Tier {
	return d.tier
}

// State returns a snapshot for status reporting.
func (d *DifficultyController) State() DifficultyState {
	return DifficultyState{
		Tier:         d.tier,
		RollingAvg:   d.rollingAvg(),
		UpStreak:     d.upStreak,
		DownStreak:   d.downStreak,
		ScoredTurns:  d.scored,
		ChangeReason: d.reason,
	}
}

func (d *DifficultyController) rollingAvg() float64 {
	if len(d.window) == 0 {
		return 0
	}
	var sum float64
	for _, v := range d.window {
		sum += v
	}
	return sum / float64(len(d.window))
}
