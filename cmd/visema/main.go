// Command visema is the main entry point for the Visema dialogue server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/visema/internal/app"
	"github.com/MrWong99/visema/internal/config"
	"github.com/MrWong99/visema/internal/observe"
	"github.com/MrWong99/visema/pkg/provider/avatar"
	avatarmock "github.com/MrWong99/visema/pkg/provider/avatar/mock"
	"github.com/MrWong99/visema/pkg/provider/avatar/stub"
	"github.com/MrWong99/visema/pkg/provider/llm"
	"github.com/MrWong99/visema/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/visema/pkg/provider/llm/mock"
	llmopenai "github.com/MrWong99/visema/pkg/provider/llm/openai"
	"github.com/MrWong99/visema/pkg/provider/realtime"
	realtimemock "github.com/MrWong99/visema/pkg/provider/realtime/mock"
	rtopenai "github.com/MrWong99/visema/pkg/provider/realtime/openai"
	"github.com/MrWong99/visema/pkg/provider/tts"
	"github.com/MrWong99/visema/pkg/provider/tts/coqui"
	"github.com/MrWong99/visema/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/MrWong99/visema/pkg/provider/tts/mock"
	ttsopenai "github.com/MrWong99/visema/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "visema: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "visema: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("visema starting",
		"config", *configPath,
		"addr", cfg.Server.Addr(),
		"mode", string(cfg.Pipeline.Mode),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "error", err)
		return 1
	}

	// ── Config watcher: hot-apply the log level ───────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.Diff) {
		if d.LogLevelChanged {
			logLevel.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.RestartRequired {
			slog.Warn("config changes require a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Stop()
	}

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with Visema
// into reg. The mock and stub factories make a zero-credential offline run
// possible, which is also the config default.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// anyllm multiplexes several chat backends behind one constructor; the
	// entry's Provider field names the backend (openai, anthropic, ollama…).
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := entry.Provider
		if backend == "" {
			return nil, errors.New("llm provider anyllm requires the provider field")
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Format != "" {
			opts = append(opts, ttsopenai.WithFormat(entry.Format))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(entry.Voice))
		}
		if format, ok := entry.Options["output_format"].(string); ok {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// coqui talks to a locally-hosted server; the Provider field selects the
	// server API ("standard" or "xtts").
	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if entry.Provider != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(entry.Provider)))
		}
		if entry.Voice != "" {
			opts = append(opts, coqui.WithSpeaker(entry.Voice))
		}
		if lang, ok := entry.Options["language"].(string); ok {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	// ── Avatar ────────────────────────────────────────────────────────────────

	reg.RegisterAvatar("stub", func(config.ProviderEntry) (avatar.Provider, error) {
		return stub.New(), nil
	})

	reg.RegisterAvatar("mock", func(config.ProviderEntry) (avatar.Provider, error) {
		return &avatarmock.Provider{}, nil
	})

	// ── Realtime ──────────────────────────────────────────────────────────────

	reg.RegisterRealtime("openai", func(entry config.ProviderEntry) (realtime.Provider, error) {
		var opts []rtopenai.Option
		if entry.Model != "" {
			opts = append(opts, rtopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, rtopenai.WithBaseURL(entry.BaseURL))
		}
		return rtopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterRealtime("mock", func(config.ProviderEntry) (realtime.Provider, error) {
		return &realtimemock.Provider{}, nil
	})
}

// buildProviders instantiates the providers the configured pipeline mode
// needs and returns them for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	avatarP, err := reg.CreateAvatar(cfg.Providers.Avatar)
	if err != nil {
		return nil, fmt.Errorf("create avatar provider %q: %w", cfg.Providers.Avatar.Name, err)
	}
	ps.Avatar = avatarP
	slog.Info("provider created", "kind", "avatar", "name", cfg.Providers.Avatar.Name)

	switch cfg.Pipeline.Mode {
	case config.ModeSplit:
		llmP, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
		}
		ps.LLM = llmP
		slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

		ttsP, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
		}
		ps.TTS = ttsP
		slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name, "model", cfg.Providers.TTS.Model)

	case config.ModeCombined:
		rtP, err := reg.CreateRealtime(cfg.Providers.Realtime)
		if err != nil {
			return nil, fmt.Errorf("create realtime provider %q: %w", cfg.Providers.Realtime.Name, err)
		}
		ps.Realtime = rtP
		slog.Info("provider created", "kind", "realtime", "name", cfg.Providers.Realtime.Name, "model", cfg.Providers.Realtime.Model)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Visema — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Mode            : %-19s║\n", cfg.Pipeline.Mode)
	fmt.Printf("║  Persona         : %-19s║\n", cfg.Persona)
	if cfg.Pipeline.Mode == config.ModeCombined {
		printProvider("Realtime", cfg.Providers.Realtime.Name, cfg.Providers.Realtime.Model)
	} else {
		printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
		printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	}
	printProvider("Avatar", cfg.Providers.Avatar.Name, "")
	if cfg.Observability.MetricsOn() {
		fmt.Printf("║  Metrics         : %-19s║\n", "/metrics")
	} else {
		fmt.Printf("║  Metrics         : %-19s║\n", "(disabled)")
	}
	fmt.Printf("║  Listen addr     : %-19s║\n", cfg.Server.Addr())
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s║\n", kind, value)
}
