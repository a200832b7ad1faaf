// Command interviewd runs the interview orchestration server: it wires the
// configured reasoning, shadow, and synthesis providers to the session engine
// and exposes the JSON HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/cam-hm/opik-career-agent/internal/app"
	"github.com/cam-hm/opik-career-agent/internal/config"
	"github.com/cam-hm/opik-career-agent/internal/httpapi"
	"github.com/cam-hm/opik-career-agent/internal/observe"
	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm/anyllm"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm/gemini"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm/openai"
	"github.com/cam-hm/opik-career-agent/pkg/provider/tts"
	"github.com/cam-hm/opik-career-agent/pkg/provider/tts/elevenlabs"
	"github.com/cam-hm/opik-career-agent/pkg/store"
	"github.com/cam-hm/opik-career-agent/pkg/store/postgres"
)

const (
	defaultListenAddr  = ":8080"
	shutdownTimeout    = 10 * time.Second
	readHeaderTimeout  = 5 * time.Second
	serviceVersionInfo = "dev"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/example.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: serviceVersionInfo,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reasoning, err := buildReasoning(ctx, cfg.Providers.Reasoning)
	if err != nil {
		return fmt.Errorf("reasoning provider: %w", err)
	}

	var shadow llm.Provider
	if cfg.Providers.Shadow.Name != "" {
		if shadow, err = buildReasoning(ctx, cfg.Providers.Shadow); err != nil {
			return fmt.Errorf("shadow provider: %w", err)
		}
	}

	synthesis, voice, err := buildSynthesis(cfg.Providers.Synthesis)
	if err != nil {
		return fmt.Errorf("synthesis provider: %w", err)
	}
	if synthesis == nil {
		slog.Info("no synthesis provider configured, running text-only")
	}

	var st store.Store
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return fmt.Errorf("postgres store: %w", err)
		}
		defer pg.Close()
		st = pg
	} else {
		slog.Warn("no postgres_dsn configured, sessions are memory-only")
	}

	catalog, err := stage.New(cfg.Stages)
	if err != nil {
		return fmt.Errorf("stage catalogue: %w", err)
	}

	manager := app.NewManager(app.Config{
		Reasoning:     reasoning,
		ReasoningName: cfg.Providers.Reasoning.Name,
		Shadow:        shadow,
		ShadowName:    cfg.Providers.Shadow.Name,
		Synthesis:     synthesis,
		SynthesisName: cfg.Providers.Synthesis.Name,
		Voice:         voice,
		Catalog:       catalog,
		Store:         st,
		Engine:        cfg.Engine,
		Difficulty:    cfg.Difficulty,
		Metrics:       metrics,
	})
	defer manager.Close()

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(manager, metrics).Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", addr, "stages", catalog.Len())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// setupLogging installs the default structured logger at the configured level.
func setupLogging(level config.LogLevel) {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// buildReasoning constructs an LLM provider from its config entry. The openai
// and gemini backends use their native SDKs; every other name goes through the
// any-llm universal adapter.
func buildReasoning(ctx context.Context, entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(apiKeyOr(entry.APIKey, "OPENAI_API_KEY"), entry.Model, opts...)
	case "gemini":
		return gemini.New(ctx, apiKeyOr(entry.APIKey, "GEMINI_API_KEY"), entry.Model)
	default:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	}
}

// buildSynthesis constructs the TTS provider, or nil when none is configured.
func buildSynthesis(entry config.ProviderEntry) (tts.Provider, tts.VoiceProfile, error) {
	if entry.Name == "" {
		return nil, tts.VoiceProfile{}, nil
	}
	if entry.Name != "elevenlabs" {
		return nil, tts.VoiceProfile{}, fmt.Errorf("unsupported synthesis provider %q", entry.Name)
	}

	p, err := elevenlabs.New(apiKeyOr(entry.APIKey, "ELEVENLABS_API_KEY"))
	if err != nil {
		return nil, tts.VoiceProfile{}, err
	}
	return p, tts.VoiceProfile{ID: entry.VoiceID}, nil
}

// apiKeyOr returns key, falling back to the named environment variable.
func apiKeyOr(key, envVar string) string {
	if key != "" {
		return key
	}
	return os.Getenv(envVar)
}
