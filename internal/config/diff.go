package config

// Diff describes what changed between two configs. Only fields that can be
// applied without a restart are tracked; everything else falls under
// RestartRequired.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PersonaChanged bool
	NewPersona     string

	// RestartRequired is set when server, pipeline, provider or
	// observability settings changed. Those are wired at startup and cannot
	// be swapped under live sessions.
	RestartRequired bool
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.PersonaChanged && !d.RestartRequired
}

// Compare returns what changed from old to new.
func Compare(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Persona != new.Persona {
		d.PersonaChanged = true
		d.NewPersona = new.Persona
	}

	if old.Server.Host != new.Server.Host || old.Server.Port != new.Server.Port {
		d.RestartRequired = true
	}
	if old.Pipeline != new.Pipeline {
		d.RestartRequired = true
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = true
	}
	if old.Observability.MetricsOn() != new.Observability.MetricsOn() ||
		old.Observability.ServiceName != new.Observability.ServiceName {
		d.RestartRequired = true
	}

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.TTS, b.TTS) &&
		entryEqual(a.Avatar, b.Avatar) &&
		entryEqual(a.Realtime, b.Realtime)
}

// entryEqual ignores Options: provider-specific option changes always require
// a restart anyway, and comparing nested any-maps structurally is not worth
// the trouble for a warning-only signal.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.Provider == b.Provider &&
		a.Model == b.Model &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Voice == b.Voice &&
		a.Format == b.Format
}
