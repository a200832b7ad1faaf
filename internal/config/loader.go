package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"reasoning": {"openai", "gemini", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"synthesis": {"elevenlabs"},
}

// validTierNames are the recognised difficulty tier names, ordered easiest
// first. Kept here so stage bounds can be validated without importing the
// stage package.
var validTierNames = []string{"foundational", "intermediate", "advanced", "expert"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("reasoning", cfg.Providers.Reasoning.Name)
	validateProviderName("reasoning", cfg.Providers.Shadow.Name)
	validateProviderName("synthesis", cfg.Providers.Synthesis.Name)

	if cfg.Providers.Reasoning.Name == "" {
		errs = append(errs, errors.New("providers.reasoning.name is required"))
	}
	if cfg.Providers.Synthesis.Name == "" {
		slog.Warn("providers.synthesis is not configured; sessions will run text-only")
	} else if cfg.Providers.Synthesis.VoiceID == "" {
		// An empty voice ID would fail every synthesis call at runtime.
		errs = append(errs, errors.New("providers.synthesis.voice_id is required when synthesis is configured"))
	}

	// Engine
	if cfg.Engine.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("engine.max_retries %d must not be negative", cfg.Engine.MaxRetries))
	}
	if cfg.Engine.RecencyWindow < 0 {
		errs = append(errs, fmt.Errorf("engine.recency_window %d must not be negative", cfg.Engine.RecencyWindow))
	}

	// Difficulty
	if cfg.Difficulty.Window < 0 {
		errs = append(errs, fmt.Errorf("difficulty.window %d must not be negative", cfg.Difficulty.Window))
	}
	if cfg.Difficulty.ConsecutiveRequired < 0 {
		errs = append(errs, fmt.Errorf("difficulty.consecutive_required %d must not be negative", cfg.Difficulty.ConsecutiveRequired))
	}
	hi, lo := cfg.Difficulty.IncreaseThreshold, cfg.Difficulty.DecreaseThreshold
	if hi != 0 && (hi < 0 || hi > 100) {
		errs = append(errs, fmt.Errorf("difficulty.increase_threshold %.1f is out of range [0, 100]", hi))
	}
	if lo != 0 && (lo < 0 || lo > 100) {
		errs = append(errs, fmt.Errorf("difficulty.decrease_threshold %.1f is out of range [0, 100]", lo))
	}
	if hi != 0 && lo != 0 && lo >= hi {
		errs = append(errs, fmt.Errorf("difficulty.decrease_threshold %.1f must be below increase_threshold %.1f", lo, hi))
	}

	// Stage duplicate ID detection
	stageIDsSeen := make(map[string]int, len(cfg.Stages))

	// Stages
	for i, st := range cfg.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if st.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := stageIDsSeen[st.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of stages[%d]", prefix, st.ID, prev))
			}
			stageIDsSeen[st.ID] = i
		}
		if len(st.Rubric) == 0 {
			errs = append(errs, fmt.Errorf("%s.rubric must list at least one dimension", prefix))
		}
		if st.MaxTurns < 0 {
			errs = append(errs, fmt.Errorf("%s.max_turns %d must not be negative", prefix, st.MaxTurns))
		}

		minIdx := validateTierName(&errs, prefix+".min_tier", st.MinTier)
		maxIdx := validateTierName(&errs, prefix+".max_tier", st.MaxTier)
		startIdx := validateTierName(&errs, prefix+".start_tier", st.StartTier)
		if minIdx >= 0 && maxIdx >= 0 && minIdx > maxIdx {
			errs = append(errs, fmt.Errorf("%s: min_tier %q is above max_tier %q", prefix, st.MinTier, st.MaxTier))
		}
		if startIdx >= 0 && minIdx >= 0 && maxIdx >= 0 && (startIdx < minIdx || startIdx > maxIdx) {
			errs = append(errs, fmt.Errorf("%s: start_tier %q is outside [%s, %s]", prefix, st.StartTier, st.MinTier, st.MaxTier))
		}
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; session records will not be persisted")
	}

	return errors.Join(errs...)
}

// validateTierName appends an error for unknown non-empty tier names and
// returns the tier's index in easiest-first order, or -1 when empty/unknown.
func validateTierName(errs *[]error, field, name string) int {
	if name == "" {
		return -1
	}
	idx := slices.Index(validTierNames, name)
	if idx < 0 {
		*errs = append(*errs, fmt.Errorf("%s %q is invalid; valid values: foundational, intermediate, advanced, expert", field, name))
	}
	return idx
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
