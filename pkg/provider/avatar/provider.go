// Package avatar defines the Provider interface for lip-synced avatar
// rendering backends.
//
// An avatar provider turns one audio chunk into the video frames that cover
// its playback window. Frames ride the same playback clock as the audio they
// were derived from, which is what makes audio/video drift measurable.
//
// Implementations must be safe for concurrent use.
package avatar

import (
	"context"

	"github.com/MrWong99/visema/pkg/types"
)

// Result is one item on a render stream: either a video frame or a terminal
// error. After a Result with a non-nil Err the channel is closed.
type Result struct {
	Frame types.VideoFrame
	Err   error
}

// Provider is the abstraction over any avatar rendering backend.
type Provider interface {
	// Animate renders the frames covering chunk's playback window. Frame
	// indices start at baseFrame and increase by one per frame, so a caller
	// feeding consecutive chunks keeps indices strictly increasing across the
	// whole turn. ctrl steers expressiveness and motion where the backend
	// supports it.
	//
	// The returned channel is closed when rendering completes, fails (after a
	// Result carrying the error), or ctx is cancelled.
	//
	// Returns a non-nil error only if rendering cannot be started.
	Animate(ctx context.Context, chunk types.AudioChunk, ctrl types.TurnControl, baseFrame int) (<-chan Result, error)

	// Health reports whether the backend is ready to render.
	Health(ctx context.Context) types.HealthStatus

	// Capabilities describes what this backend supports.
	Capabilities() types.Capabilities
}
