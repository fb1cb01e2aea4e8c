// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one sentence of text into a stream of timed audio
// chunks. The engine calls Synthesize once per sentence segment, so providers
// see short inputs and can start emitting audio quickly; the chunk timestamps
// carry the playback position that downstream avatar rendering aligns to.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/visema/pkg/types"
)

// Result is one item on a synthesis stream: either an audio chunk or a
// terminal error. After a Result with a non-nil Err the channel is closed.
type Result struct {
	Chunk types.AudioChunk
	Err   error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a stream of audio chunks. The emotion and
	// speech-rate fields of ctrl steer voice selection and playback speed;
	// providers that cannot honor a control simply ignore it.
	//
	// The returned channel is closed by the implementation when synthesis
	// completes, fails (after a Result carrying the error), or ctx is
	// cancelled. Chunk timestamps are monotonically non-decreasing within one
	// call and denote the playback start of each chunk in milliseconds.
	//
	// Returns a non-nil error only if the stream cannot be started.
	Synthesize(ctx context.Context, text string, ctrl types.TurnControl) (<-chan Result, error)

	// Health reports whether the backend is reachable with the configured
	// credentials.
	Health(ctx context.Context) types.HealthStatus

	// Capabilities describes what this backend supports.
	Capabilities() types.Capabilities
}
