// Package mock provides a deterministic llm.Provider for offline mode and
// tests.
//
// With no script configured it generates a tone-prefixed canned answer from
// the request's emotion control, emitted word by word to emulate streaming.
// Tests can instead set Script to control the exact chunk sequence, and read
// Calls to verify what the engine sent.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/visema/pkg/provider/llm"
	"github.com/MrWong99/visema/pkg/types"
)

// tonePrefix opens the canned answer according to the requested emotion, so
// downstream stages (and humans reading transcripts) can see the control
// taking effect without a live model.
var tonePrefix = map[types.EmotionLabel]string{
	types.EmotionNeutral:   "Here is a clear answer.",
	types.EmotionHappy:     "Great question, this is exciting.",
	types.EmotionSad:       "I understand, here is a calm response.",
	types.EmotionAngry:     "Let us be direct and focused.",
	types.EmotionSurprised: "Interesting twist, here is what matters.",
	types.EmotionFearful:   "Carefully and step by step, here is the answer.",
	types.EmotionDisgusted: "Let us keep this practical and concise.",
}

// Provider is a deterministic mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Script, when non-empty, is emitted verbatim instead of the generated
	// answer. The terminal chunk's FinishReason is honored, including
	// "error".
	Script []llm.Chunk

	// StreamErr, if non-nil, is returned from StreamTokens instead of
	// opening a stream.
	StreamErr error

	// TokenDelay adds a pause between tokens to emulate model latency.
	// Zero (the default) emits as fast as the consumer reads.
	TokenDelay time.Duration

	// Calls records every StreamTokens invocation in order.
	Calls []llm.Request
}

var _ llm.Provider = (*Provider)(nil)

// StreamTokens records the call and streams either Script or the generated
// tone-prefixed answer, word by word.
func (p *Provider) StreamTokens(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.Script))
	copy(chunks, p.Script)
	delay := p.TokenDelay
	p.mu.Unlock()

	if len(chunks) == 0 {
		chunks = generate(req)
	}

	ch := make(chan llm.Chunk, 16)
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
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// generate produces the canned answer as word tokens. The first token is
// bare; later tokens carry a leading space, so sentence-final words end with
// their punctuation the way real BPE token streams do.
func generate(req llm.Request) []llm.Chunk {
	prefix, ok := tonePrefix[req.Control.Emotion.Label]
	if !ok {
		prefix = tonePrefix[types.EmotionNeutral]
	}
	text := prefix + " You asked: " + strings.TrimSpace(req.Text) +
		" I will keep the answer short, useful, and easy to act on."

	words := strings.Fields(text)
	chunks := make([]llm.Chunk, 0, len(words)+1)
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		chunks = append(chunks, llm.Chunk{Token: w})
	}
	return append(chunks, llm.Chunk{FinishReason: "stop"})
}

// Health implements llm.Provider. Always healthy.
func (p *Provider) Health(context.Context) types.HealthStatus {
	return types.HealthStatus{Healthy: true, LatencyMs: 0.1, Detail: "mock llm"}
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: true,
		SupportsEmotion:   true,
		MaxTextLength:     100000,
		SupportedEmotions: types.EmotionLabels(),
	}
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
