// Command callwarden is the main entry point for the Callwarden scam call
// screening server.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/callwarden/callwarden/internal/config"
	"github.com/callwarden/callwarden/internal/health"
	"github.com/callwarden/callwarden/internal/observe"
	"github.com/callwarden/callwarden/internal/pipeline"
	"github.com/callwarden/callwarden/internal/resilience"
	"github.com/callwarden/callwarden/internal/server"
	"github.com/callwarden/callwarden/internal/session"
	"github.com/callwarden/callwarden/pkg/provider/analysis"
	"github.com/callwarden/callwarden/pkg/provider/analysis/anyllm"
	analysisopenai "github.com/callwarden/callwarden/pkg/provider/analysis/openai"
	"github.com/callwarden/callwarden/pkg/provider/stt"
	"github.com/callwarden/callwarden/pkg/provider/stt/elevenlabs"
	"github.com/callwarden/callwarden/pkg/provider/stt/whisper"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can adjust it at
	// runtime without rebuilding the handler.
	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	// ── Load configuration (with hot reload) ──────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ProvidersChanged || d.PipelineChanged || d.ResilienceChanged {
			slog.Warn("provider, pipeline, or resilience settings changed; restart required to apply")
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callwarden: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callwarden: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	levelVar.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("callwarden starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"stt", cfg.Providers.STT.Name,
		"analysis", cfg.Providers.Analysis.Name,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "callwarden",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	transcriber, err := buildTranscriber(cfg, reg)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}
	analyzer, err := buildAnalyzer(cfg, reg)
	if err != nil {
		slog.Error("failed to build analysis provider", "err", err)
		return 1
	}

	// ── Sessions + pipeline ───────────────────────────────────────────────────
	metrics := observe.DefaultMetrics()
	sessions := session.NewRegistry(session.RegistryConfig{
		WindowMaxCount: cfg.Pipeline.WindowMaxCount,
		WindowMaxAge:   cfg.Pipeline.WindowMaxAge.Std(),
		SessionTTL:     cfg.Pipeline.SessionTTL.Std(),
		OnExpire: func(removed int) {
			metrics.ActiveSessions.Add(context.Background(), -int64(removed))
		},
	})

	p, err := pipeline.New(sessions, transcriber, analyzer,
		pipeline.WithSTTTimeout(cfg.Pipeline.STTTimeout.Std()),
		pipeline.WithAnalysisTimeout(cfg.Pipeline.AnalysisTimeout.Std()),
	)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(p, sessions, server.WithCheckers(
		health.Checker{Name: "server", Check: func(c context.Context) error {
			// Not ready once shutdown has begun.
			return ctx.Err()
		}},
	))
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Run group: serve + session sweep + graceful shutdown ─────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)
		var err error
		if cfg.Server.TLS != nil {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		sessions.Sweep(gctx, cfg.Pipeline.SweepInterval.Std())
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders are the analysis backends served through the unified
// any-llm client. "openai" is deliberately absent; it uses the native client.
var anyLLMProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("elevenlabs", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, elevenlabs.WithLanguage(lang))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── Analysis ──────────────────────────────────────────────────────────────

	reg.RegisterAnalysis("openai", func(entry config.ProviderEntry) (analysis.Analyzer, error) {
		var opts []analysisopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, analysisopenai.WithBaseURL(entry.BaseURL))
		}
		if temp, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, analysisopenai.WithTemperature(temp))
		}
		return analysisopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range anyLLMProviders {
		reg.RegisterAnalysis(providerName, func(entry config.ProviderEntry) (analysis.Analyzer, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterAnalysis("ollama", func(entry config.ProviderEntry) (analysis.Analyzer, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildTranscriber creates the configured STT provider and wraps it, together
// with any fallbacks, behind per-provider circuit breakers.
func buildTranscriber(cfg *config.Config, reg *config.Registry) (stt.Transcriber, error) {
	entry := cfg.Providers.STT
	primary, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name)

	group := resilience.NewSTTFallback(primary, entry.Name, fallbackConfig(cfg, "stt/"+entry.Name))
	for _, fb := range entry.Fallbacks {
		t, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, t)
		slog.Info("provider created", "kind", "stt", "name", fb.Name, "role", "fallback")
	}
	return group, nil
}

// buildAnalyzer creates the configured analysis provider with its fallbacks.
func buildAnalyzer(cfg *config.Config, reg *config.Registry) (analysis.Analyzer, error) {
	entry := cfg.Providers.Analysis
	primary, err := reg.CreateAnalysis(entry)
	if err != nil {
		return nil, fmt.Errorf("create analysis provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "analysis", "name", entry.Name)

	group := resilience.NewAnalysisFallback(primary, entry.Name, fallbackConfig(cfg, "analysis/"+entry.Name))
	for _, fb := range entry.Fallbacks {
		a, err := reg.CreateAnalysis(fb)
		if err != nil {
			return nil, fmt.Errorf("create analysis fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, a)
		slog.Info("provider created", "kind", "analysis", "name", fb.Name, "role", "fallback")
	}
	return group, nil
}

func fallbackConfig(cfg *config.Config, name string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout.Std(),
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
		},
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optFloat extracts a float value from a provider Options map. YAML decodes
// whole numbers as int, so both numeric shapes are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
