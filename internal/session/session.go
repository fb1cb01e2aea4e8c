// Package session holds per-connection dialogue state: the state machine,
// conversation history, pending control and the in-flight turn handle.
//
// A Session is confined to its connection: the connection's receive loop and
// the turn task it spawns are the only mutators. The mutex exists because
// those two run concurrently, not because sessions are shared.
package session

import (
	"context"
	"sync"

	"github.com/MrWong99/visema/internal/alignment"
	"github.com/MrWong99/visema/pkg/types"
)

// State is one phase of the per-session turn lifecycle.
type State string

const (
	StateIdle            State = "IDLE"
	StateLLMRun          State = "LLM_RUN"
	StateCtrlMerge       State = "CTRL_MERGE"
	StateTTSRun          State = "TTS_RUN"
	StateAvatarRun       State = "AVATAR_RUN"
	StateStreamingOutput State = "STREAMING_OUTPUT"
	StateTurnComplete    State = "TURN_COMPLETE"
	StateTurnError       State = "TURN_ERROR"
	StateInterrupted     State = "INTERRUPTED"
)

// IsValid reports whether s is one of the defined states.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateLLMRun, StateCtrlMerge, StateTTSRun, StateAvatarRun,
		StateStreamingOutput, StateTurnComplete, StateTurnError, StateInterrupted:
		return true
	}
	return false
}

// Session is the per-connection dialogue state.
type Session struct {
	// ID is the session's UUID, assigned by the registry.
	ID string

	// PersonaName is the display name injected into system prompts.
	PersonaName string

	personaDefaults types.TurnControl

	mu         sync.Mutex
	history    []types.Message
	pending    *types.TurnControl
	state      State
	drift      *alignment.Tracker
	turnCancel context.CancelFunc
	turnDone   chan struct{}
}

// New constructs a Session in StateIdle.
func New(id string, personaDefaults types.TurnControl, personaName string) *Session {
	return &Session{
		ID:              id,
		PersonaName:     personaName,
		personaDefaults: personaDefaults,
		state:           StateIdle,
		drift:           alignment.NewTracker(alignment.DefaultWindow),
	}
}

// PersonaDefaults returns the session's authoritative control defaults.
func (s *Session) PersonaDefaults() types.TurnControl {
	return s.personaDefaults
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions to st. Transitioning to an undefined state is a
// programming error and panics.
func (s *Session) SetState(st State) {
	if !st.IsValid() {
		panic("session: unknown state " + string(st))
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// AppendHistory records one conversation message for multi-turn context.
func (s *Session) AppendHistory(role, content string) {
	s.mu.Lock()
	s.history = append(s.history, types.Message{Role: role, Content: content})
	s.mu.Unlock()
}

// History returns a copy of the conversation so far.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// SetPendingControl stages ctrl to merge into the next turn.
func (s *Session) SetPendingControl(ctrl types.TurnControl) {
	s.mu.Lock()
	s.pending = &ctrl
	s.mu.Unlock()
}

// TakePendingControl returns and clears the staged control, if any.
func (s *Session) TakePendingControl() (types.TurnControl, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return types.TurnControl{}, false
	}
	ctrl := *s.pending
	s.pending = nil
	return ctrl, true
}

// BeginTurn registers the in-flight turn's cancel function and completion
// channel. The turn task must close done when it exits.
func (s *Session) BeginTurn(cancel context.CancelFunc, done chan struct{}) {
	s.mu.Lock()
	s.turnCancel = cancel
	s.turnDone = done
	s.mu.Unlock()
}

// CancelCurrentTurn cancels the in-flight turn, if any, waits for it to
// finish, and returns the session to StateIdle. Safe to call when idle.
func (s *Session) CancelCurrentTurn() {
	s.mu.Lock()
	cancel := s.turnCancel
	done := s.turnDone
	s.turnCancel = nil
	s.turnDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

// Drift returns the session's audio/video drift tracker.
func (s *Session) Drift() *alignment.Tracker {
	return s.drift
}

// ResetDrift clears drift samples at turn start.
func (s *Session) ResetDrift() {
	s.drift.Reset()
}
