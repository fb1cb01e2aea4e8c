// Package coqui provides a tts.Provider backed by a locally-running Coqui TTS
// server, either the standard server or an XTTS v2 API server.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; health is probed via GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body; health is probed
//     via GET /studio_speakers; voice cloning is available via
//     POST /clone_speaker.
//
// Both servers operate in batch mode, one HTTP call per utterance. Synthesize
// therefore issues a single request and emits the returned PCM in fixed-size
// chunks with a running timestamp cursor. The WAV container is parsed only to
// locate the sample data and tag its sample rate; the audio itself passes
// through untouched.
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/visema/pkg/provider/tts"
	"github.com/MrWong99/visema/pkg/types"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// pcmChunkSize is the size of each emitted audio chunk. Small enough to
	// keep outbound frames responsive, large enough to amortise overhead.
	pcmChunkSize = 4096

	maxTextLength = 2000
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server (e.g., "en", "de").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode selects the server API mode. Defaults to APIModeStandard.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithSpeaker sets the speaker identity: a speaker_id for the standard server
// or a speaker_wav reference for XTTS. XTTS mode requires one.
func WithSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.speaker = speaker
	}
}

// Provider implements tts.Provider backed by a local Coqui TTS server. It is
// safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Provider targeting the TTS server at serverURL (e.g.,
// "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode == APIModeXTTS && p.speaker == "" {
		return nil, errors.New("coqui: XTTS mode requires a speaker (WithSpeaker)")
	}
	return p, nil
}

// ---- Synthesize ----

// Synthesize implements tts.Provider. The Coqui servers have no streaming
// API, so the whole utterance is synthesised in one HTTP round trip and the
// resulting PCM is emitted in fixed-size chunks with cursor timestamps.
// Speech-rate and emotion controls are ignored: neither server API accepts
// them.
func (p *Provider) Synthesize(ctx context.Context, text string, _ types.TurnControl) (<-chan tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	ch := make(chan tts.Result, 8)
	go func() {
		defer close(ch)

		pcm, rate, err := p.synthesize(ctx, text)
		if err != nil {
			select {
			case ch <- tts.Result{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		cursor := 0.0
		for len(pcm) > 0 {
			end := min(pcmChunkSize, len(pcm))
			chunk := types.AudioChunk{
				Data:        pcm[:end],
				TimestampMs: cursor,
				DurationMs:  types.EstimatePCMDurationMs(pcm[:end], rate),
				SampleRate:  rate,
				Encoding:    types.EncodingPCM,
			}
			cursor += chunk.DurationMs
			select {
			case ch <- tts.Result{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
			pcm = pcm[end:]
		}
	}()
	return ch, nil
}

// synthesize dispatches to the configured API mode and returns the raw PCM
// with its sample rate.
func (p *Provider) synthesize(ctx context.Context, text string) ([]byte, int, error) {
	if p.apiMode == APIModeStandard {
		return p.synthesizeStandard(ctx, text)
	}
	return p.synthesizeXTTS(ctx, text)
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) synthesizeXTTS(ctx context.Context, text string) ([]byte, int, error) {
	body, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: p.speaker,
		Language:   p.language,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	return p.fetchWAV(req, ttsEndpoint)
}

func (p *Provider) synthesizeStandard(ctx context.Context, text string) ([]byte, int, error) {
	params := url.Values{}
	params.Set("text", text)
	if p.speaker != "" {
		params.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	return p.fetchWAV(req, apiTTSEndpoint)
}

// fetchWAV executes a synthesis request and strips the WAV container from the
// response, returning the PCM payload and its sample rate.
func (p *Provider) fetchWAV(req *http.Request, endpoint string) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("coqui: %s %s returned status %d", req.Method, endpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, 0, err
	}
	return wav[info.DataOffset:], info.SampleRate, nil
}

// ---- voice cloning (XTTS only) ----

// cloneSpeakerResponse is the JSON body returned by POST /clone_speaker.
type cloneSpeakerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// CloneSpeaker creates a new speaker voice by uploading WAV samples to the
// XTTS server. The returned name can be passed to WithSpeaker. Cloning is not
// available in standard API mode.
func (p *Provider) CloneSpeaker(ctx context.Context, samples [][]byte) (string, error) {
	if p.apiMode == APIModeStandard {
		return "", errors.New("coqui: voice cloning is not supported in standard API mode")
	}
	if len(samples) == 0 {
		return "", errors.New("coqui: CloneSpeaker requires at least one audio sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, sample := range samples {
		fw, err := mw.CreateFormFile("wav_files", fmt.Sprintf("sample_%02d.wav", i))
		if err != nil {
			return "", fmt.Errorf("coqui: create form file: %w", err)
		}
		if _, err := fw.Write(sample); err != nil {
			return "", fmt.Errorf("coqui: write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("coqui: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("coqui: create clone-speaker request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("coqui: POST %s: %w", cloneSpeakerEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("coqui: POST %s returned status %d", cloneSpeakerEndpoint, resp.StatusCode)
	}

	var cloneResp cloneSpeakerResponse
	if err := json.NewDecoder(resp.Body).Decode(&cloneResp); err != nil {
		return "", fmt.Errorf("coqui: decode clone-speaker response: %w", err)
	}
	if cloneResp.Name == "" {
		return "", errors.New("coqui: clone-speaker response missing name")
	}
	return cloneResp.Name, nil
}

// ---- health ----

// Health implements tts.Provider. It probes the mode's catalogue endpoint:
// GET /details for the standard server, GET /studio_speakers for XTTS.
func (p *Provider) Health(ctx context.Context) types.HealthStatus {
	endpoint := detailsEndpoint
	if p.apiMode == APIModeXTTS {
		endpoint = studioSpeakersEndpoint
	}

	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return types.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	resp, err := p.httpClient.Do(req)
	latency := float64(time.Since(t0).Microseconds()) / 1000
	if err != nil {
		return types.HealthStatus{Healthy: false, LatencyMs: latency, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.HealthStatus{
			Healthy:   false,
			LatencyMs: latency,
			Detail:    fmt.Sprintf("GET %s returned status %d", endpoint, resp.StatusCode),
		}
	}
	return types.HealthStatus{Healthy: true, LatencyMs: latency}
}

// Capabilities implements tts.Provider. The servers are batch-mode and accept
// no emotion or rate parameters; XTTS can impersonate cloned speakers.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: false,
		SupportsEmotion:   false,
		SupportsIdentity:  p.apiMode == APIModeXTTS,
		MaxTextLength:     maxTextLength,
	}
}

// ---- WAV parsing ----

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int
	Channels   int
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. The fmt chunk size may vary, so
// the chunks are walked rather than assuming a fixed 44-byte header.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt should precede data; fall back to the model default.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
