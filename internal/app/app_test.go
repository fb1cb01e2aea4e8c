package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/visema/internal/app"
	"github.com/MrWong99/visema/internal/config"
	"github.com/MrWong99/visema/internal/engine"
	avatarmock "github.com/MrWong99/visema/pkg/provider/avatar/mock"
	"github.com/MrWong99/visema/pkg/provider/avatar/stub"
	llmmock "github.com/MrWong99/visema/pkg/provider/llm/mock"
	realtimemock "github.com/MrWong99/visema/pkg/provider/realtime/mock"
	ttsmock "github.com/MrWong99/visema/pkg/provider/tts/mock"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func baseConfig(mode config.Mode) *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.Host = "127.0.0.1"
	cfg.Pipeline.Mode = mode
	return cfg
}

func splitProviders() *app.Providers {
	return &app.Providers{
		LLM:    &llmmock.Provider{},
		TTS:    &ttsmock.Provider{},
		Avatar: stub.New(),
	}
}

// ─── wiring ──────────────────────────────────────────────────────────────────

func TestNewSplitMode(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), baseConfig(config.ModeSplit), splitProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer shutdown(t, a)

	if got := a.Mode(); got != engine.ModeSplit {
		t.Errorf("mode = %q, want split", got)
	}
}

func TestNewCombinedMode(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), baseConfig(config.ModeCombined), &app.Providers{
		Avatar:   &avatarmock.Provider{},
		Realtime: &realtimemock.Provider{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer shutdown(t, a)

	if got := a.Mode(); got != engine.ModeCombined {
		t.Errorf("mode = %q, want combined", got)
	}
}

func TestNewSplitModeMissingProviders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		providers *app.Providers
		wantIn    string
	}{
		{"no llm", &app.Providers{TTS: &ttsmock.Provider{}, Avatar: stub.New()}, "LLM"},
		{"no tts", &app.Providers{LLM: &llmmock.Provider{}, Avatar: stub.New()}, "TTS"},
		{"no avatar", &app.Providers{LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}}, "avatar"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := app.New(context.Background(), baseConfig(config.ModeSplit), tc.providers)
			if err == nil || !strings.Contains(err.Error(), tc.wantIn) {
				t.Errorf("New = %v, want error mentioning %s", err, tc.wantIn)
			}
		})
	}
}

func TestNewCombinedModeRequiresRealtime(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), baseConfig(config.ModeCombined), &app.Providers{
		Avatar: stub.New(),
	})
	if err == nil || !strings.Contains(err.Error(), "realtime") {
		t.Errorf("New = %v, want realtime requirement error", err)
	}
}

// ─── lifecycle ───────────────────────────────────────────────────────────────

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), baseConfig(config.ModeSplit), splitProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func shutdown(t *testing.T, a *app.App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
