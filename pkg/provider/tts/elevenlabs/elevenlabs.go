// Package elevenlabs provides a tts.Provider backed by the ElevenLabs
// streaming WebSocket API.
//
// Each Synthesize call opens a stream-input socket, sends the text in one
// message followed by a flush, and decodes the base64 PCM responses into
// timed audio chunks. Emotion and expressivity controls map onto the
// voice_settings object: an animated delivery lowers stability, emotion
// intensity raises style.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/visema/pkg/provider/tts"
	"github.com/MrWong99/visema/pkg/types"
)

const (
	wsEndpointFmt  = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	voicesEndpoint = "https://api.elevenlabs.io/v1/voices"

	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	// defaultVoice is the premade "Rachel" voice, available on every account.
	defaultVoice = "21m00Tcm4TlvDq8ikWAM"

	maxTextLength = 5000
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000",
// "pcm_24000"). Only pcm_* formats are supported because chunk durations are
// derived from the sample rate.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoice sets the ElevenLabs voice ID used for synthesis. Defaults to the
// premade "Rachel" voice.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voiceID = voiceID
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	voiceID      string
	sampleRate   int
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		voiceID:      defaultVoice,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := sampleRateFor(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// sampleRateFor extracts the sample rate from a pcm_* output format name.
func sampleRateFor(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (need pcm_*)", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return rate, nil
}

// ---- WebSocket message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

// boiMessage is the initial "begin of input" handshake carrying the API key.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// textMessage is the payload for one text fragment; an empty Text flushes.
type textMessage struct {
	Text string `json:"text"`
}

// audioResponse is one message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// settingsFor maps turn controls onto voice settings. A more animated
// character gets a less stable (more varied) delivery; emotional arousal
// destabilises further; emotion intensity drives the style exaggeration.
func settingsFor(ctrl types.TurnControl) *voiceSettings {
	stability := 0.85 - 0.4*ctrl.Character.Expressivity - 0.15*ctrl.Emotion.Arousal
	style := 0.0
	if ctrl.Emotion.Label != types.EmotionNeutral {
		style = ctrl.Emotion.Intensity
	}
	return &voiceSettings{
		Stability:       clamp01(stability),
		SimilarityBoost: 0.75,
		Style:           clamp01(style),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// streamURL builds the stream-input WebSocket URL.
func (p *Provider) streamURL() string {
	return fmt.Sprintf(wsEndpointFmt, p.voiceID, p.model, p.outputFormat)
}

// Synthesize implements tts.Provider. It opens a WebSocket, sends text as a
// single fragment followed by a flush, and streams the returned PCM as timed
// chunks until the server marks the stream final.
func (p *Provider) Synthesize(ctx context.Context, text string, ctrl types.TurnControl) (<-chan tts.Result, error) {
	conn, _, err := websocket.Dial(ctx, p.streamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// BOI message: authenticates and fixes the voice settings for the stream.
	boi := boiMessage{
		Text:          " ", // the first text value must be non-empty
		VoiceSettings: settingsFor(ctrl),
		XiAPIKey:      p.apiKey,
	}
	for _, msg := range []any{boi, textMessage{Text: text}, textMessage{Text: ""}} {
		data, err := json.Marshal(msg)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "encode failure")
			return nil, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			conn.Close(websocket.StatusInternalError, "write failure")
			return nil, fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}

	ch := make(chan tts.Result, 8)
	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		cursor := 0.0
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				// A normal closure after isFinal never reaches here; anything
				// else means the stream broke mid-synthesis.
				emit(ctx, ch, tts.Result{Err: fmt.Errorf("elevenlabs: read stream: %w", err)})
				return
			}

			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Audio != "" {
				pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err != nil {
					emit(ctx, ch, tts.Result{Err: fmt.Errorf("elevenlabs: decode audio: %w", err)})
					return
				}
				chunk := types.AudioChunk{
					Data:        pcm,
					TimestampMs: cursor,
					DurationMs:  types.EstimatePCMDurationMs(pcm, p.sampleRate),
					SampleRate:  p.sampleRate,
					Encoding:    types.EncodingPCM,
				}
				cursor += chunk.DurationMs
				if !emit(ctx, ch, tts.Result{Chunk: chunk}) {
					return
				}
			}
			if resp.IsFinal {
				return
			}
		}
	}()

	return ch, nil
}

// emit delivers one result unless ctx ends first.
func emit(ctx context.Context, ch chan<- tts.Result, r tts.Result) bool {
	select {
	case ch <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// ---- voice catalogue ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []voiceEntry `json:"voices"`
}

// voiceEntry is a single voice from the ElevenLabs API.
type voiceEntry struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]voiceEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return vr.Voices, nil
}

// Health implements tts.Provider. It lists voices, the cheapest authenticated
// call the API offers.
func (p *Provider) Health(ctx context.Context) types.HealthStatus {
	t0 := time.Now()
	_, err := p.ListVoices(ctx)
	latency := float64(time.Since(t0).Microseconds()) / 1000
	if err != nil {
		return types.HealthStatus{Healthy: false, LatencyMs: latency, Detail: err.Error()}
	}
	return types.HealthStatus{Healthy: true, LatencyMs: latency}
}

// Capabilities implements tts.Provider.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: true,
		SupportsEmotion:   true, // via voice_settings mapping
		SupportsIdentity:  true, // any voice ID on the account, clones included
		MaxTextLength:     maxTextLength,
		SupportedEmotions: types.EmotionLabels(),
	}
}
