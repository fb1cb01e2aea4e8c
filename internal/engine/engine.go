// Package engine defines the Engine interface: the turn orchestrator that
// drives the generators for one user turn and emits outbound events in order.
//
// Two implementations exist. The split engine (package split) pipelines
// LLM → sentence segmentation → TTS → Avatar as two cooperating tasks. The
// combined engine (package combined) delegates text and audio to a single
// persistent realtime session and drives only the avatar locally.
//
// The interface is intentionally narrow so the connection loop stays
// mode-agnostic: it hands the engine a session, the user text, the per-turn
// control, and the outbound queue, and interprets the returned error.
package engine

import (
	"context"

	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/types"
)

// Mode names a turn pipeline.
type Mode string

const (
	// ModeSplit runs LLM, TTS and Avatar as separate pipelined stages.
	ModeSplit Mode = "split"

	// ModeCombined delegates LLM+TTS to one realtime backend session.
	ModeCombined Mode = "combined"
)

// Engine runs one turn at a time per session.
//
// RunTurn's contract with the caller:
//   - nil return: the turn completed; turn_complete has been enqueued.
//   - context.Canceled (or a wrapping error): the turn was interrupted; the
//     event stream was truncated with neither turn_complete nor error.
//   - any other error: the turn failed; the caller emits the error event and
//     moves the session to TURN_ERROR.
//
// Events are enqueued on out in emission order. RunTurn never closes out; it
// belongs to the connection's send loop. Sends respect ctx, so a cancelled
// turn cannot wedge on a full queue.
type Engine interface {
	// RunTurn executes one turn: user text in, ordered events out. ctrl is
	// the per-turn control before persona resolution; RunTurn resolves it
	// against the session's persona defaults.
	RunTurn(ctx context.Context, sess *session.Session, userText string, ctrl types.TurnControl, out chan<- types.Event) error

	// Mode reports which pipeline this engine implements.
	Mode() Mode

	// Interrupt performs mode-specific barge-in work beyond context
	// cancellation. The split engine has none; the combined engine signals
	// response cancellation on its shared backend session.
	Interrupt(ctx context.Context) error

	// Close releases engine-owned resources (the combined engine's backend
	// session). Idempotent.
	Close() error
}
