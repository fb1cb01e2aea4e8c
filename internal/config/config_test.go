package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/visema/internal/config"
)

// ─── defaults ────────────────────────────────────────────────────────────────

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.Mode != config.ModeSplit {
		t.Errorf("mode = %q, want split", cfg.Pipeline.Mode)
	}
	if cfg.Persona != "default" {
		t.Errorf("persona = %q, want default", cfg.Persona)
	}
	if cfg.Providers.LLM.Name != "mock" || cfg.Providers.TTS.Name != "mock" {
		t.Errorf("default llm/tts = %q/%q, want mock/mock", cfg.Providers.LLM.Name, cfg.Providers.TTS.Name)
	}
	if cfg.Providers.Avatar.Name != "stub" {
		t.Errorf("default avatar = %q, want stub", cfg.Providers.Avatar.Name)
	}
	if !cfg.Observability.MetricsOn() {
		t.Error("metrics should default to enabled")
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	off := false
	cfg := &config.Config{}
	cfg.Server.Port = 9090
	cfg.Pipeline.Mode = config.ModeCombined
	cfg.Observability.MetricsEnabled = &off
	config.ApplyDefaults(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Pipeline.Mode != config.ModeCombined {
		t.Errorf("mode = %q, want combined", cfg.Pipeline.Mode)
	}
	if cfg.Observability.MetricsOn() {
		t.Error("metrics explicitly disabled but MetricsOn is true")
	}
}

// ─── validation ──────────────────────────────────────────────────────────────

func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	if err := config.Validate(validConfig()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Server.LogLevel = "loud"
	cfg.Server.Port = 99999
	cfg.Pipeline.Mode = "duplex"
	cfg.Providers.TTS.Format = "ogg"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "port", "pipeline.mode", "format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateCombinedModeRequiresRealtime(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Pipeline.Mode = config.ModeCombined

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "realtime") {
		t.Errorf("Validate = %v, want a realtime requirement error", err)
	}

	cfg.Providers.Realtime.Name = "openai"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate with realtime set: %v", err)
	}
}

func TestValidateAcceptsKnownFormats(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "mp3", "pcm"} {
		cfg := validConfig()
		cfg.Providers.TTS.Format = format
		if err := config.Validate(cfg); err != nil {
			t.Errorf("format %q rejected: %v", format, err)
		}
	}
}

// ─── log level ───────────────────────────────────────────────────────────────

func TestLogLevelConversion(t *testing.T) {
	t.Parallel()

	cases := map[config.LogLevel]string{
		config.LogDebug: "DEBUG",
		config.LogInfo:  "INFO",
		config.LogWarn:  "WARN",
		config.LogError: "ERROR",
	}
	for level, want := range cases {
		if got := level.Level().String(); got != want {
			t.Errorf("%s.Level() = %s, want %s", level, got, want)
		}
	}
}

// ─── diff ────────────────────────────────────────────────────────────────────

func TestCompareDetectsHotReloadableChanges(t *testing.T) {
	t.Parallel()

	old := validConfig()
	new := validConfig()
	new.Server.LogLevel = config.LogDebug
	new.Persona = "excited"

	d := config.Compare(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.PersonaChanged || d.NewPersona != "excited" {
		t.Errorf("persona diff = %+v", d)
	}
	if d.RestartRequired {
		t.Error("log level and persona changes should not require a restart")
	}
}

func TestCompareFlagsRestartForProviderChange(t *testing.T) {
	t.Parallel()

	old := validConfig()
	new := validConfig()
	new.Providers.LLM.Model = "gpt-4o"

	d := config.Compare(old, new)
	if !d.RestartRequired {
		t.Error("provider change should require a restart")
	}
}

func TestCompareIdenticalConfigsIsEmpty(t *testing.T) {
	t.Parallel()

	if d := config.Compare(validConfig(), validConfig()); !d.Empty() {
		t.Errorf("diff of identical configs = %+v, want empty", d)
	}
}
