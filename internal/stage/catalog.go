// Package stage holds the interview stage catalogue: the immutable set of
// stage definitions (rubric, persona, seed questions, difficulty bounds) a
// session progresses through.
//
// The catalogue is built once at startup from configuration and never mutated
// afterwards, so it is safe for concurrent use without locking.
package stage

import (
	"errors"
	"fmt"

	"github.com/cam-hm/opik-career-agent/internal/config"
)

// ErrUnknownStage is returned by [Catalog.StageFor] for an ID not in the
// catalogue.
var ErrUnknownStage = errors.New("unknown stage")

// defaultMaxTurns bounds a stage when the configuration leaves max_turns unset.
const defaultMaxTurns = 10

// Stage is one immutable interview stage definition.
type Stage struct {
	// ID uniquely identifies the stage.
	ID string

	// Name is the human-readable stage name.
	Name string

	// Persona is the interviewer persona text for this stage.
	Persona string

	// Greeting seeds the interviewer's opening line.
	Greeting string

	// Rubric lists the competency dimensions evaluated in this stage.
	Rubric []string

	// SeedQuestions are candidate openers offered to the reasoning model.
	SeedQuestions []string

	// MinTier and MaxTier bound the difficulty range for the stage.
	MinTier Tier
	MaxTier Tier

	// StartTier is the difficulty the stage begins at.
	StartTier Tier

	// MaxTurns bounds the number of turns before the stage terminates.
	MaxTurns int
}

// Catalog is an ordered, immutable collection of stages.
type Catalog struct {
	stages []Stage
	byID   map[string]int
}

// New builds a Catalog from configuration. When cfgs is empty the built-in
// default catalogue is returned. Config values are assumed pre-validated by
// config.Validate; New applies defaults (tier bounds, start tier, max turns)
// and rejects only what validation cannot see.
func New(cfgs []config.StageConfig) (*Catalog, error) {
	if len(cfgs) == 0 {
		return DefaultCatalog(), nil
	}

	stages := make([]Stage, 0, len(cfgs))
	for i, c := range cfgs {
		st := Stage{
			ID:            c.ID,
			Name:          c.Name,
			Persona:       c.Persona,
			Greeting:      c.Greeting,
			Rubric:        append([]string(nil), c.Rubric...),
			SeedQuestions: append([]string(nil), c.SeedQuestions...),
			MinTier:       Tier(c.MinTier),
			MaxTier:       Tier(c.MaxTier),
			StartTier:     Tier(c.StartTier),
			MaxTurns:      c.MaxTurns,
		}
		if st.ID == "" {
			return nil, fmt.Errorf("stage[%d]: id is required", i)
		}
		if st.Name == "" {
			st.Name = st.ID
		}
		if st.MinTier == "" {
			st.MinTier = TierFoundational
		}
		if st.MaxTier == "" {
			st.MaxTier = TierExpert
		}
		if st.StartTier == "" {
			st.StartTier = st.MinTier
		}
		if st.MaxTurns == 0 {
			st.MaxTurns = defaultMaxTurns
		}
		if !st.MinTier.IsValid() || !st.MaxTier.IsValid() || !st.StartTier.IsValid() {
			return nil, fmt.Errorf("stage %q: invalid tier bounds [%s, %s] start %s", st.ID, st.MinTier, st.MaxTier, st.StartTier)
		}
		stages = append(stages, st)
	}

	return newCatalog(stages)
}

// newCatalog indexes stages by ID.
func newCatalog(stages []Stage) (*Catalog, error) {
	byID := make(map[string]int, len(stages))
	for i, st := range stages {
		if _, dup := byID[st.ID]; dup {
			return nil, fmt.Errorf("stage %q: duplicate id", st.ID)
		}
		byID[st.ID] = i
	}
	return &Catalog{stages: stages, byID: byID}, nil
}

// DefaultCatalog returns the built-in three-stage interview: a short
// screening conversation, a technical deep dive, and a behavioral stage.
func DefaultCatalog() *Catalog {
	cat, err := newCatalog([]Stage{
		{
			ID:       "screening",
			Name:     "Screening",
			Persona:  "You are a friendly recruiter conducting an initial screening conversation. Keep questions open and conversational.",
			Greeting: "Thanks for joining today. To start, could you walk me through your background?",
			Rubric:   []string{"communication", "motivation", "experience_fit"},
			SeedQuestions: []string{
				"What drew you to this role?",
				"Tell me about your current position and responsibilities.",
			},
			MinTier:   TierFoundational,
			MaxTier:   TierIntermediate,
			StartTier: TierFoundational,
			MaxTurns:  6,
		},
		{
			ID:       "technical",
			Name:     "Technical Deep Dive",
			Persona:  "You are a senior engineer conducting a technical interview. Probe for depth, ask follow-ups on vague answers, and stay on one topic until it is resolved.",
			Greeting: "Let's dig into some technical topics. Tell me about a system you designed or significantly changed.",
			Rubric:   []string{"technical_accuracy", "problem_solving", "depth", "system_design"},
			SeedQuestions: []string{
				"Describe a hard bug you tracked down. What made it hard?",
				"How would you design a rate limiter for a public API?",
			},
			MinTier:   TierFoundational,
			MaxTier:   TierExpert,
			StartTier: TierIntermediate,
			MaxTurns:  12,
		},
		{
			ID:       "behavioral",
			Name:     "Behavioral",
			Persona:  "You are a hiring manager assessing collaboration and judgment. Ask for specific situations and outcomes, not hypotheticals.",
			Greeting: "I'd like to hear about how you work with others. Tell me about a recent disagreement with a teammate and how it resolved.",
			Rubric:   []string{"collaboration", "ownership", "communication", "judgment"},
			SeedQuestions: []string{
				"Tell me about a time you missed a deadline. What happened?",
				"Describe a decision you made with incomplete information.",
			},
			MinTier:   TierFoundational,
			MaxTier:   TierAdvanced,
			StartTier: TierIntermediate,
			MaxTurns:  8,
		},
	})
	if err != nil {
		panic("stage: default catalogue is invalid: " + err.Error())
	}
	return cat
}

// First returns the opening stage of the catalogue.
func (c *Catalog) First() Stage {
	return c.stages[0]
}

// StageFor returns the stage with the given ID, or [ErrUnknownStage].
func (c *Catalog) StageFor(id string) (Stage, error) {
	i, ok := c.byID[id]
	if !ok {
		return Stage{}, fmt.Errorf("%w: %q", ErrUnknownStage, id)
	}
	return c.stages[i], nil
}

// Next returns the stage following id in catalogue order. ok is false when id
// is the last stage or unknown.
func (c *Catalog) Next(id string) (Stage, bool) {
	i, found := c.byID[id]
	if !found || i+1 >= len(c.stages) {
		return Stage{}, false
	}
	return c.stages[i+1], true
}

// Stages returns a copy of the stage list in catalogue order.
func (c *Catalog) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Len returns the number of stages.
func (c *Catalog) Len() int {
	return len(c.stages)
}
