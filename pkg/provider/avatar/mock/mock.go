// Package mock provides a test double for the avatar.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/visema/pkg/provider/avatar"
	"github.com/MrWong99/visema/pkg/types"
)

// Call records a single Animate invocation.
type Call struct {
	Chunk     types.AudioChunk
	Ctrl      types.TurnControl
	BaseFrame int
}

// Provider is a mock implementation of avatar.Provider. With no Frames
// configured it emits a single one-byte frame per chunk, indexed from
// baseFrame.
type Provider struct {
	mu sync.Mutex

	// Frames, when non-empty, is emitted verbatim on every Animate call.
	Frames []types.VideoFrame

	// AnimateErr, if non-nil, is returned from Animate instead of opening a
	// stream.
	AnimateErr error

	// StreamErr, if non-nil, is emitted as the terminal Result after Frames.
	StreamErr error

	// Calls records every Animate invocation in order.
	Calls []Call
}

var _ avatar.Provider = (*Provider)(nil)

// Animate records the call and streams either Frames or a single generated
// placeholder frame.
func (p *Provider) Animate(ctx context.Context, chunk types.AudioChunk, ctrl types.TurnControl, baseFrame int) (<-chan avatar.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Chunk: chunk, Ctrl: ctrl, BaseFrame: baseFrame})
	if p.AnimateErr != nil {
		err := p.AnimateErr
		p.mu.Unlock()
		return nil, err
	}
	frames := make([]types.VideoFrame, len(p.Frames))
	copy(frames, p.Frames)
	streamErr := p.StreamErr
	p.mu.Unlock()

	if len(frames) == 0 {
		frames = []types.VideoFrame{{
			Data:        []byte{0},
			TimestampMs: chunk.TimestampMs,
			FrameIndex:  baseFrame,
			Width:       1,
			Height:      1,
			ContentType: types.ContentTypeRawRGB,
		}}
	}

	ch := make(chan avatar.Result, 8)
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case ch <- avatar.Result{Frame: f}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			select {
			case ch <- avatar.Result{Err: streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// Health implements avatar.Provider. Always healthy.
func (p *Provider) Health(context.Context) types.HealthStatus {
	return types.HealthStatus{Healthy: true, LatencyMs: 0.1, Detail: "mock avatar"}
}

// Capabilities implements avatar.Provider.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: true,
		SupportsEmotion:   true,
		SupportedEmotions: types.EmotionLabels(),
	}
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
