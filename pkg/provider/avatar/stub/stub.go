// Package stub provides a deterministic avatar.Provider that renders black
// placeholder frames at a fixed 25 FPS.
//
// It exists so the full pipeline, including frame pacing and drift tracking,
// runs without a GPU renderer. Frame count and timing follow the audio: one
// frame per 40ms of chunk duration, at least one frame per chunk.
package stub

import (
	"context"
	"math"

	"github.com/MrWong99/visema/pkg/provider/avatar"
	"github.com/MrWong99/visema/pkg/types"
)

const (
	// FPS is the fixed render rate.
	FPS = 25

	// FrameIntervalMs is the playback time between consecutive frames.
	FrameIntervalMs = 1000.0 / FPS

	frameWidth  = 256
	frameHeight = 256
)

// black is the shared payload of every frame. Never mutated.
var black = make([]byte, frameWidth*frameHeight*3)

// Provider renders placeholder frames. The zero value is ready to use.
type Provider struct{}

var _ avatar.Provider = (*Provider)(nil)

// New returns a new stub Provider.
func New() *Provider {
	return &Provider{}
}

// FrameCount returns how many frames cover durationMs of audio: the duration
// rounded to whole frames at 25 FPS, with a floor of one frame so even a tiny
// chunk produces visible output.
func FrameCount(durationMs float64) int {
	n := int(math.Round(durationMs / 1000 * FPS))
	if n < 1 {
		return 1
	}
	return n
}

// Animate implements avatar.Provider.
func (p *Provider) Animate(ctx context.Context, chunk types.AudioChunk, _ types.TurnControl, baseFrame int) (<-chan avatar.Result, error) {
	n := FrameCount(chunk.DurationMs)

	ch := make(chan avatar.Result, 8)
	go func() {
		defer close(ch)
		for i := 0; i < n; i++ {
			frame := types.VideoFrame{
				Data:        black,
				TimestampMs: chunk.TimestampMs + float64(i)*FrameIntervalMs,
				FrameIndex:  baseFrame + i,
				Width:       frameWidth,
				Height:      frameHeight,
				ContentType: types.ContentTypeRawRGB,
			}
			select {
			case ch <- avatar.Result{Frame: frame}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Health implements avatar.Provider. Always healthy.
func (p *Provider) Health(context.Context) types.HealthStatus {
	return types.HealthStatus{Healthy: true, LatencyMs: 0.1, Detail: "stub avatar"}
}

// Capabilities implements avatar.Provider.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: true,
		SupportsEmotion:   false,
		SupportsIdentity:  false,
		SupportedEmotions: nil,
	}
}
