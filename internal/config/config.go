// Package config provides the configuration schema, loader, provider factory
// registry, and file watcher for the Visema server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MrWong99/visema/internal/control"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to its slog equivalent.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mode selects the turn pipeline.
type Mode string

const (
	// ModeSplit runs LLM, TTS and Avatar as separate pipelined stages.
	ModeSplit Mode = "split"

	// ModeCombined delegates LLM+TTS to one realtime backend session.
	ModeCombined Mode = "combined"
)

// IsValid reports whether m is a recognised pipeline mode.
func (m Mode) IsValid() bool {
	return m == ModeSplit || m == ModeCombined
}

// Config is the root configuration, typically loaded from YAML via [Load].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Persona       string              `yaml:"persona"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// Host is the interface to bind (e.g. "0.0.0.0").
	Host string `yaml:"host"`

	// Port is the TCP port to listen on.
	Port int `yaml:"port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PipelineConfig selects the turn pipeline mode.
type PipelineConfig struct {
	Mode Mode `yaml:"mode"`
}

// ProvidersConfig declares which provider implementation backs each generator
// stage. Each Name resolves through the [Registry]. Split mode uses LLM, TTS
// and Avatar; combined mode uses Realtime and Avatar.
type ProvidersConfig struct {
	LLM      ProviderEntry `yaml:"llm"`
	TTS      ProviderEntry `yaml:"tts"`
	Avatar   ProviderEntry `yaml:"avatar"`
	Realtime ProviderEntry `yaml:"realtime"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Fields not meaningful for a kind are simply ignored by its factory.
type ProviderEntry struct {
	// Name selects the registered factory (e.g. "openai", "anyllm", "mock").
	Name string `yaml:"name"`

	// Provider is the backend name for meta-providers that multiplex several
	// upstreams (the anyllm LLM provider).
	Provider string `yaml:"provider"`

	// Model selects a specific model (e.g. "gpt-4o-mini", "tts-1").
	Model string `yaml:"model"`

	// APIKey authenticates against the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. Empty uses the
	// built-in default.
	BaseURL string `yaml:"base_url"`

	// Voice selects the synthesis voice or speaker identity for providers
	// that support one (realtime, elevenlabs, coqui). Empty derives the voice
	// from the persona's default emotion where possible.
	Voice string `yaml:"voice"`

	// Format selects the TTS output encoding: "mp3" or "pcm".
	Format string `yaml:"format"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// ObservabilityConfig controls metrics and tracing.
type ObservabilityConfig struct {
	// MetricsEnabled toggles the /metrics endpoint. Defaults to true.
	MetricsEnabled *bool `yaml:"metrics_enabled"`

	// ServiceName is the name reported in telemetry.
	ServiceName string `yaml:"service_name"`
}

// MetricsOn reports whether metrics are enabled (the default).
func (o ObservabilityConfig) MetricsOn() bool {
	return o.MetricsEnabled == nil || *o.MetricsEnabled
}

// ValidProviderNames lists known provider names per generator kind. Unknown
// names only warn, so out-of-tree registrations keep working.
var ValidProviderNames = map[string][]string{
	"llm":      {"anyllm", "openai", "mock"},
	"tts":      {"openai", "elevenlabs", "coqui", "mock"},
	"avatar":   {"stub", "mock"},
	"realtime": {"openai", "mock"},
}

// ApplyDefaults fills zero-valued fields with their documented defaults. It
// runs before [Validate] so a minimal config passes validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Pipeline.Mode == "" {
		cfg.Pipeline.Mode = ModeSplit
	}
	if cfg.Persona == "" {
		cfg.Persona = "default"
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = "mock"
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = "mock"
	}
	if cfg.Providers.Avatar.Name == "" {
		cfg.Providers.Avatar.Name = "stub"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "visema"
	}
}

// Validate checks that cfg is coherent, returning a joined error listing all
// failures. Suspicious-but-workable values only warn.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if !cfg.Pipeline.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.mode %q is invalid; valid values: split, combined", cfg.Pipeline.Mode))
	}

	if _, known := control.PresetFor(cfg.Persona); !known {
		if hint := control.Suggest(cfg.Persona); hint != "" {
			slog.Warn("unknown default persona", "persona", cfg.Persona, "did_you_mean", hint)
		} else {
			slog.Warn("unknown default persona, sessions fall back to default", "persona", cfg.Persona)
		}
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("avatar", cfg.Providers.Avatar.Name)
	validateProviderName("realtime", cfg.Providers.Realtime.Name)

	switch cfg.Pipeline.Mode {
	case ModeSplit:
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("pipeline.mode split requires providers.llm"))
		}
		if cfg.Providers.TTS.Name == "" {
			errs = append(errs, errors.New("pipeline.mode split requires providers.tts"))
		}
	case ModeCombined:
		if cfg.Providers.Realtime.Name == "" {
			errs = append(errs, errors.New("pipeline.mode combined requires providers.realtime"))
		}
	}
	if cfg.Providers.Avatar.Name == "" {
		errs = append(errs, errors.New("providers.avatar is required in every mode"))
	}

	if f := cfg.Providers.TTS.Format; f != "" && f != "mp3" && f != "pcm" {
		errs = append(errs, fmt.Errorf("providers.tts.format %q is invalid; valid values: mp3, pcm", f))
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is non-empty and not in the known list
// for kind. Third-party registrations are legitimate, so this never errors.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or an out-of-tree provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
