// Package openai provides a tts.Provider backed by the OpenAI speech API.
//
// Audio arrives as MP3 at a constant 128 kbps (or raw 16-bit PCM at 24 kHz
// when configured), which lets chunk durations be computed from byte counts
// alone. Timestamps run on a wall-clock cursor: each chunk starts where the
// previous one ended.
package openai

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/visema/pkg/provider/tts"
	"github.com/MrWong99/visema/pkg/types"
)

const (
	defaultTimeout = 60 * time.Second
	sampleRate     = 24000
	mp3BitrateKbps = 128
	readChunkSize  = 8192
)

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  string
	format string
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	baseURL string
	format  string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithFormat selects the audio encoding, types.EncodingMP3 (default) or
// types.EncodingPCM.
func WithFormat(format string) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithTimeout overrides the per-request HTTP timeout (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider. model is a speech model name such
// as "tts-1" or "gpt-4o-mini-tts".
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai tts: model must not be empty")
	}

	cfg := &config{format: types.EncodingMP3, timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.format != types.EncodingMP3 && cfg.format != types.EncodingPCM {
		return nil, fmt.Errorf("openai tts: unsupported format %q", cfg.format)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		format: cfg.format,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, ctrl types.TurnControl) (<-chan tts.Result, error) {
	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          VoiceForEmotion(ctrl.Emotion.Label),
		ResponseFormat: responseFormat(p.format),
		Speed:          param.NewOpt(SpeedFor(ctrl)),
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech request: %w", err)
	}

	ch := make(chan tts.Result, 8)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		cursor := 0.0
		buf := make([]byte, readChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunk := types.AudioChunk{
					Data:        data,
					TimestampMs: cursor,
					DurationMs:  p.durationMs(data),
					SampleRate:  sampleRate,
					Encoding:    p.format,
				}
				cursor += chunk.DurationMs

				select {
				case ch <- tts.Result{Chunk: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case ch <- tts.Result{Err: fmt.Errorf("openai tts: read stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return ch, nil
}

func (p *Provider) durationMs(data []byte) float64 {
	if p.format == types.EncodingPCM {
		return types.EstimatePCMDurationMs(data, sampleRate)
	}
	return types.EstimateMP3DurationMs(data, mp3BitrateKbps)
}

func responseFormat(format string) oai.AudioSpeechNewParamsResponseFormat {
	if format == types.EncodingPCM {
		return oai.AudioSpeechNewParamsResponseFormatPCM
	}
	return oai.AudioSpeechNewParamsResponseFormatMP3
}

// VoiceForEmotion maps an emotion label onto one of the fixed OpenAI voices.
// The mapping is a deliberate proxy: the speech endpoint has no emotion
// parameter, so tone is steered by voice choice and speed.
func VoiceForEmotion(label types.EmotionLabel) oai.AudioSpeechNewParamsVoice {
	switch label {
	case types.EmotionNeutral:
		return oai.AudioSpeechNewParamsVoice("nova")
	case types.EmotionHappy:
		return oai.AudioSpeechNewParamsVoiceShimmer
	case types.EmotionSad:
		return oai.AudioSpeechNewParamsVoice("onyx")
	case types.EmotionAngry, types.EmotionDisgusted:
		return oai.AudioSpeechNewParamsVoiceEcho
	case types.EmotionSurprised:
		return oai.AudioSpeechNewParamsVoice("fable")
	case types.EmotionFearful:
		return oai.AudioSpeechNewParamsVoiceAlloy
	default:
		return oai.AudioSpeechNewParamsVoiceAlloy
	}
}

// SpeedFor derives the playback speed from the turn control: the character's
// speech rate nudged by emotional arousal, clamped to the API's [0.25,4.0]
// range and rounded to two decimals.
func SpeedFor(ctrl types.TurnControl) float64 {
	speed := ctrl.Character.SpeechRate * (1 + 0.15*ctrl.Emotion.Arousal)
	speed = math.Max(0.25, math.Min(4.0, speed))
	return math.Round(speed*100) / 100
}

// Health implements tts.Provider. It lists models, matching the cheapest
// authenticated call the API offers.
func (p *Provider) Health(ctx context.Context) types.HealthStatus {
	t0 := time.Now()
	_, err := p.client.Models.List(ctx)
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
		SupportsEmotion:   true, // via voice and speed mapping
		MaxTextLength:     4096, // documented speech input limit
		SupportedEmotions: types.EmotionLabels(),
	}
}
