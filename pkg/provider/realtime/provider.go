// Package realtime defines the Provider interface for combined
// speech-and-text backends that generate a full model response, text and
// audio together, over one persistent connection.
//
// Unlike the split pipeline (LLM then TTS), a realtime backend owns the whole
// turn: the caller sends user text and consumes a single event stream of text
// deltas, audio chunks and a turn-complete marker. Avatar rendering stays
// outside; it is driven from the audio events.
package realtime

import (
	"context"

	"github.com/MrWong99/visema/pkg/types"
)

// SessionConfig carries the initial session parameters.
type SessionConfig struct {
	// Instructions is the system prompt applied to every response.
	Instructions string

	// Voice selects the backend voice. Empty means provider default.
	Voice string
}

// Event is one item on a session's event stream. The concrete types are
// TextDeltaEvent, AudioEvent and TurnCompleteEvent.
type Event interface {
	isEvent()
}

// TextDeltaEvent carries one transcript token of the spoken response.
type TextDeltaEvent struct {
	Token string
}

// AudioEvent carries one chunk of synthesized response audio.
type AudioEvent struct {
	Chunk types.AudioChunk
}

// TurnCompleteEvent marks the end of one model response.
type TurnCompleteEvent struct {
	// TurnID is the backend's identifier for the completed response.
	TurnID string
}

func (TextDeltaEvent) isEvent()    {}
func (AudioEvent) isEvent()        {}
func (TurnCompleteEvent) isEvent() {}

// SessionHandle is a live connection to a realtime backend.
//
// Implementations must be safe for concurrent use: the engine sends user text
// from one goroutine while another drains Events.
type SessionHandle interface {
	// SendUserText appends the text as a user message and asks the backend to
	// generate a response. Events for that response arrive on Events.
	SendUserText(ctx context.Context, text string) error

	// CancelResponse aborts the in-flight response, if any, and discards
	// already-buffered events for it. Safe to call when idle.
	CancelResponse(ctx context.Context) error

	// Events returns the session's event stream. The channel is closed when
	// the session ends; Err reports why.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil after a clean
	// Close.
	Err() error

	// Close terminates the session and releases all resources. Idempotent.
	Close() error
}

// Provider is the abstraction over any combined-mode backend.
type Provider interface {
	// Connect establishes a new session. The handle is ready for SendUserText
	// as soon as Connect returns.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Health reports whether the backend is reachable with the configured
	// credentials.
	Health(ctx context.Context) types.HealthStatus

	// Capabilities describes what this backend supports.
	Capabilities() types.Capabilities
}
