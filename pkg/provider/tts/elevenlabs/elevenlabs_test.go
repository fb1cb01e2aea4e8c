package elevenlabs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/MrWong99/visema/pkg/types"
)

// ─── construction ────────────────────────────────────────────────────────────

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", p.sampleRate)
	}
	if p.voiceID != defaultVoice {
		t.Errorf("voiceID = %q, want default", p.voiceID)
	}
}

func TestNewRejectsNonPCMFormat(t *testing.T) {
	t.Parallel()

	if _, err := New("key", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Fatal("expected error for non-PCM output format")
	}
}

func TestWithOutputFormatSetsSampleRate(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.sampleRate != 24000 {
		t.Errorf("sampleRate = %d, want 24000", p.sampleRate)
	}
}

// ─── URL and payload shape ───────────────────────────────────────────────────

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithVoice("abc123"), WithModel("eleven_turbo_v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	url := p.streamURL()
	for _, want := range []string{
		"wss://api.elevenlabs.io/v1/text-to-speech/abc123/stream-input",
		"model_id=eleven_turbo_v2",
		"output_format=pcm_16000",
	} {
		if !strings.Contains(url, want) {
			t.Errorf("streamURL = %q, missing %q", url, want)
		}
	}
}

func TestBOIMessageCarriesAPIKey(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(boiMessage{
		Text:          " ",
		VoiceSettings: settingsFor(types.DefaultTurnControl()),
		XiAPIKey:      "secret",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["xi_api_key"] != "secret" {
		t.Errorf("xi_api_key = %v, want secret", decoded["xi_api_key"])
	}
	if decoded["text"] != " " {
		t.Error("BOI text must be a non-empty placeholder")
	}
}

// ─── control mapping ─────────────────────────────────────────────────────────

func TestSettingsForNeutralDefault(t *testing.T) {
	t.Parallel()

	vs := settingsFor(types.DefaultTurnControl())
	if vs.Style != 0 {
		t.Errorf("style = %v, want 0 for neutral emotion", vs.Style)
	}
	if vs.Stability <= 0 || vs.Stability >= 1 {
		t.Errorf("stability = %v, want interior of [0,1]", vs.Stability)
	}
}

func TestSettingsForExpressiveIsLessStable(t *testing.T) {
	t.Parallel()

	calm := types.DefaultTurnControl()
	calm.Character.Expressivity = 0.1

	animated := types.DefaultTurnControl()
	animated.Character.Expressivity = 1.0
	animated.Emotion.Arousal = 0.8

	if settingsFor(animated).Stability >= settingsFor(calm).Stability {
		t.Errorf("animated stability %v not below calm %v",
			settingsFor(animated).Stability, settingsFor(calm).Stability)
	}
}

func TestSettingsForEmotionIntensityDrivesStyle(t *testing.T) {
	t.Parallel()

	ctrl := types.DefaultTurnControl()
	ctrl.Emotion.Label = types.EmotionHappy
	ctrl.Emotion.Intensity = 0.9

	if got := settingsFor(ctrl).Style; got != 0.9 {
		t.Errorf("style = %v, want 0.9", got)
	}
}

func TestSettingsForClampsExtremes(t *testing.T) {
	t.Parallel()

	ctrl := types.DefaultTurnControl()
	ctrl.Character.Expressivity = 1.0
	ctrl.Emotion.Arousal = 1.0

	vs := settingsFor(ctrl)
	if vs.Stability < 0 || vs.Stability > 1 {
		t.Errorf("stability = %v outside [0,1]", vs.Stability)
	}
}

// ─── voice catalogue parsing ─────────────────────────────────────────────────

func TestVoicesResponseDecodes(t *testing.T) {
	t.Parallel()

	raw := `{"voices":[
		{"voice_id":"v1","name":"Rachel","category":"premade"},
		{"voice_id":"v2","name":"Custom","category":"cloned"}
	]}`
	var vr voicesResponse
	if err := json.Unmarshal([]byte(raw), &vr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(vr.Voices) != 2 {
		t.Fatalf("voices = %d, want 2", len(vr.Voices))
	}
	if vr.Voices[1].Category != "cloned" {
		t.Errorf("category = %q, want cloned", vr.Voices[1].Category)
	}
}

// ─── capabilities ────────────────────────────────────────────────────────────

func TestCapabilities(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	caps := p.Capabilities()
	if !caps.SupportsStreaming || !caps.SupportsEmotion || !caps.SupportsIdentity {
		t.Errorf("capabilities = %+v, want streaming, emotion and identity support", caps)
	}
}
