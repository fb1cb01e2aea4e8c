// Package mock provides a deterministic tts.Provider for offline mode and
// tests.
//
// Chunk payloads are tagged text rather than audio, so transcripts of a mock
// run show exactly what was synthesized and at what speed. Durations scale
// with text length, which keeps downstream frame counts and drift math
// realistic without an actual codec.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/visema/pkg/provider/tts"
	"github.com/MrWong99/visema/pkg/types"
)

const (
	sampleRate = 24000
	// maxPayload caps one chunk's payload so pathological inputs cannot blow
	// up outbound frames.
	maxPayload = 2048
)

// Call records a single Synthesize invocation.
type Call struct {
	Text string
	Ctrl types.TurnControl
}

// Provider is a deterministic mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks, when non-empty, is emitted verbatim instead of the generated
	// sequence.
	Chunks []types.AudioChunk

	// SynthesizeErr, if non-nil, is returned from Synthesize instead of
	// opening a stream.
	SynthesizeErr error

	// StreamErr, if non-nil, is emitted as the terminal Result after Chunks.
	StreamErr error

	// ChunkDelay adds a pause before each chunk to emulate synthesis latency.
	ChunkDelay time.Duration

	// Calls records every Synthesize invocation in order.
	Calls []Call
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and streams either Chunks or a generated
// sequence whose total duration scales with len(text).
func (p *Provider) Synthesize(ctx context.Context, text string, ctrl types.TurnControl) (<-chan tts.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Text: text, Ctrl: ctrl})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]types.AudioChunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	streamErr := p.StreamErr
	delay := p.ChunkDelay
	p.mu.Unlock()

	if len(chunks) == 0 {
		chunks = generate(text, ctrl.Character.SpeechRate)
	}

	ch := make(chan tts.Result, 8)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- tts.Result{Chunk: c}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			select {
			case ch <- tts.Result{Err: streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// generate fabricates a chunk sequence for text: total duration 12ms per
// character clamped to [250,1800]ms, split into 2..8 chunks with a running
// timestamp cursor.
func generate(text string, speed float64) []types.AudioChunk {
	totalMs := clamp(float64(len(text))*12, 250, 1800)
	n := int(clamp(float64(len(text)/35+1), 2, 8))
	perChunk := totalMs / float64(n)

	chunks := make([]types.AudioChunk, 0, n)
	cursor := 0.0
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf("MOCK_MP3|chunk=%d|speed=%.2f|%s", i, speed, text)
		if len(payload) > maxPayload {
			payload = payload[:maxPayload]
		}
		chunks = append(chunks, types.AudioChunk{
			Data:        []byte(payload),
			TimestampMs: cursor,
			DurationMs:  perChunk,
			SampleRate:  sampleRate,
			Encoding:    "mock_mp3",
		})
		cursor += perChunk
	}
	return chunks
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Health implements tts.Provider. Always healthy.
func (p *Provider) Health(context.Context) types.HealthStatus {
	return types.HealthStatus{Healthy: true, LatencyMs: 0.1, Detail: "mock tts"}
}

// Capabilities implements tts.Provider.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: true,
		SupportsEmotion:   true,
		MaxTextLength:     4096,
		SupportedEmotions: types.EmotionLabels(),
	}
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
