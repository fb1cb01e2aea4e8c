// Package app wires all Visema subsystems into a running application.
//
// The App struct owns the full lifecycle: New constructs the engine, session
// registry and HTTP surface from config and providers, Run serves until the
// context ends, and Shutdown tears everything down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/visema/internal/config"
	"github.com/MrWong99/visema/internal/control"
	"github.com/MrWong99/visema/internal/engine"
	"github.com/MrWong99/visema/internal/engine/combined"
	"github.com/MrWong99/visema/internal/engine/split"
	"github.com/MrWong99/visema/internal/health"
	"github.com/MrWong99/visema/internal/observe"
	"github.com/MrWong99/visema/internal/server"
	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/provider/avatar"
	"github.com/MrWong99/visema/pkg/provider/llm"
	"github.com/MrWong99/visema/pkg/provider/realtime"
	"github.com/MrWong99/visema/pkg/provider/tts"
	ttsopenai "github.com/MrWong99/visema/pkg/provider/tts/openai"
)

// Providers holds one interface value per generator slot. Nil means the slot
// is not configured. Populated by main.go via the config registry; the active
// pipeline mode decides which slots are required.
type Providers struct {
	LLM      llm.Provider
	TTS      tts.Provider
	Avatar   avatar.Provider
	Realtime realtime.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	registry *session.Registry
	eng      engine.Engine
	metrics  *observe.Metrics
	httpSrv  *http.Server

	// closers run in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New wires config and providers into a ready-to-run App.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		registry:  session.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Engine ────────────────────────────────────────────────────────
	eng, err := a.buildEngine(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	a.eng = eng
	a.closers = append(a.closers, eng.Close)

	// ── 2. HTTP surface ──────────────────────────────────────────────────
	mux := http.NewServeMux()

	srv := server.New(a.registry, a.eng, a.generators(), a.metrics)
	srv.Register(mux)

	health.New(a.healthCheckers()...).Register(mux)

	if cfg.Observability.MetricsOn() {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// buildEngine constructs the pipeline for the configured mode.
func (a *App) buildEngine(ctx context.Context) (engine.Engine, error) {
	if a.providers.Avatar == nil {
		return nil, errors.New("avatar provider is required in every mode")
	}

	switch a.cfg.Pipeline.Mode {
	case config.ModeSplit:
		if a.providers.LLM == nil {
			return nil, errors.New("split mode requires an LLM provider")
		}
		if a.providers.TTS == nil {
			return nil, errors.New("split mode requires a TTS provider")
		}
		return split.New(a.providers.LLM, a.providers.TTS, a.providers.Avatar), nil

	case config.ModeCombined:
		if a.providers.Realtime == nil {
			return nil, errors.New("combined mode requires a realtime provider")
		}
		preset, _ := control.PresetFor(a.cfg.Persona)
		return combined.New(ctx,
			a.providers.Realtime,
			a.providers.Avatar,
			control.BuildSystemPrompt(preset.Control, preset.DisplayName),
			a.realtimeVoice(preset),
		)

	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", a.cfg.Pipeline.Mode)
	}
}

// realtimeVoice picks the combined-mode synthesis voice: the configured one,
// or the voice the split pipeline would choose for the persona's default
// emotion.
func (a *App) realtimeVoice(preset control.Preset) string {
	if v := a.cfg.Providers.Realtime.Voice; v != "" {
		return v
	}
	return string(ttsopenai.VoiceForEmotion(preset.Control.Emotion.Label))
}

// generators maps the populated provider slots for the server's health and
// capability reports.
func (a *App) generators() server.Generators {
	g := server.Generators{}
	if a.providers.LLM != nil {
		g.LLM = a.providers.LLM
	}
	if a.providers.TTS != nil {
		g.TTS = a.providers.TTS
	}
	if a.providers.Avatar != nil {
		g.Avatar = a.providers.Avatar
	}
	if a.providers.Realtime != nil {
		g.Realtime = a.providers.Realtime
	}
	return g
}

// healthCheckers builds readiness checks for every populated provider slot.
func (a *App) healthCheckers() []health.Checker {
	var checks []health.Checker
	if a.providers.LLM != nil {
		checks = append(checks, health.ForGenerator("llm", a.providers.LLM))
	}
	if a.providers.TTS != nil {
		checks = append(checks, health.ForGenerator("tts", a.providers.TTS))
	}
	if a.providers.Avatar != nil {
		checks = append(checks, health.ForGenerator("avatar", a.providers.Avatar))
	}
	if a.providers.Realtime != nil {
		checks = append(checks, health.ForGenerator("realtime", a.providers.Realtime))
	}
	return checks
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the listener fails. It returns
// nil on a clean shutdown-triggered exit.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.httpSrv.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpSrv.Serve(ln)
	}()

	slog.Info("server running",
		"addr", ln.Addr().String(),
		"mode", string(a.eng.Mode()),
		"persona", a.cfg.Persona,
	)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Addr returns the configured listen address.
func (a *App) Addr() string {
	return a.httpSrv.Addr
}

// Mode reports the active pipeline mode.
func (a *App) Mode() engine.Mode {
	return a.eng.Mode()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and tears down subsystems in order. It
// respects ctx's deadline: remaining closers are skipped once it expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "error", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
