package interview

import (
	"fmt"
	"strings"

	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
)

// defaultRecencyWindow bounds how many recent turns enter the prompt when the
// configuration leaves the window unset.
const defaultRecencyWindow = 6

// PromptPayload is the instruction payload sent to the reasoning provider for
// one turn.
type PromptPayload struct {
	// SystemPrompt carries the persona, rubric focus, and difficulty
	// guidance for the active stage.
	SystemPrompt string

	// Messages is the bounded recent conversation history, ending with the
	// candidate's current utterance.
	Messages []llm.Message
}

// Composer builds prompt payloads. Compose is deterministic: identical inputs
// produce identical payloads, so prompts can be tested without a provider.
type Composer struct {
	window int
}

// NewComposer creates a Composer with the given recency window. A
// non-positive window selects the default of 6 turns.
func NewComposer(window int) *Composer {
	if window <= 0 {
		window = defaultRecencyWindow
	}
	return &Composer{window: window}
}

// tierGuidance maps each difficulty tier to its question guidance text.
var tierGuidance = map[stage.Tier]string{
	stage.TierFoundational: "Ask foundational questions covering core concepts and definitions. Keep scope narrow and concrete.",
	stage.TierIntermediate: "Ask practical application questions. Expect the candidate to explain how and why, not just what.",
	stage.TierAdvanced:     "Ask questions involving trade-offs, failure modes, and non-obvious interactions. Push past the first answer.",
	stage.TierExpert:       "Ask expert-level questions about architecture decisions, edge cases, and deep internals. Challenge assumptions.",
}

// Compose builds the payload for the next interviewer turn.
//
// recent is bounded to the composer's recency window; older turns are
// dropped. When recent is empty (session start), the payload instructs the
// model to open the stage with its greeting. Returns a [*CompositionError]
// only when st is malformed (empty rubric); every other input produces a
// payload.
func (c *Composer) Compose(sess *Session, st stage.Stage, tier stage.Tier, recent []Turn, utterance string) (PromptPayload, error) {
	if len(st.Rubric) == 0 {
		return PromptPayload{}, &CompositionError{StageID: st.ID, Reason: "rubric has no dimensions"}
	}

	var sys strings.Builder
	if st.Persona != "" {
		sys.WriteString(st.Persona)
	} else {
		sys.WriteString("You are a professional interviewer conducting a structured interview.")
	}
	sys.WriteString("\n\n")

	if sess.TargetRole != "" {
		fmt.Fprintf(&sys, "The candidate is interviewing for the role: %s.\n", sess.TargetRole)
	}
	fmt.Fprintf(&sys, "Current stage: %s.\n", st.Name)
	fmt.Fprintf(&sys, "Assess these competencies through your questions: %s.\n", strings.Join(st.Rubric, ", "))

	if g, ok := tierGuidance[tier]; ok {
		sys.WriteString(g)
		sys.WriteString("\n")
	}

	if len(st.SeedQuestions) > 0 {
		sys.WriteString("Example questions for this stage:\n")
		for _, q := range st.SeedQuestions {
			fmt.Fprintf(&sys, "- %s\n", q)
		}
	}

	sys.WriteString("\nRespond with one concise spoken reply: acknowledge the answer briefly, then ask exactly one question. Do not enumerate multiple questions.")

	if len(recent) == 0 {
		greeting := st.Greeting
		if greeting == "" {
			greeting = "Greet the candidate warmly and ask an opening question for this stage."
		} else {
			greeting = fmt.Sprintf("Open the stage along these lines: %q", greeting)
		}
		sys.WriteString("\nThis is the first exchange of the stage. ")
		sys.WriteString(greeting)
	}

	payload := PromptPayload{SystemPrompt: sys.String()}

	start := 0
	if len(recent) > c.window {
		start = len(recent) - c.window
	}
	for _, t := range recent[start:] {
		if t.Status == TurnSkipped {
			continue
		}
		if t.Utterance != "" {
			payload.Messages = append(payload.Messages, llm.Message{Role: llm.RoleUser, Content: t.Utterance})
		}
		if t.Response != "" {
			payload.Messages = append(payload.Messages, llm.Message{Role: llm.RoleAssistant, Content: t.Response})
		}
	}

	payload.Messages = append(payload.Messages, llm.Message{Role: llm.RoleUser, Content: utterance})

	return payload, nil
}

// Window returns the configured recency window size.
func (c *Composer) Window() int {
	return c.window
}
