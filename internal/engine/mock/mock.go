// Package mock provides an in-memory mock implementation of [engine.Engine]
// for use in unit tests.
//
// The mock records every RunTurn call and plays back a configurable event
// script. It is safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/visema/internal/engine"
	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/types"
)

// Compile-time interface assertion.
var _ engine.Engine = (*Engine)(nil)

// TurnCall records the arguments of a single [Engine.RunTurn] call.
type TurnCall struct {
	// SessionID identifies the session the turn ran on.
	SessionID string
	// Text is the user text passed to RunTurn.
	Text string
	// Ctrl is the per-turn control passed to RunTurn.
	Ctrl types.TurnControl
}

// Engine is a mock implementation of [engine.Engine].
//
// On each RunTurn it enqueues Events in order and returns RunErr. A nil
// RunErr signals a completed turn, so the script must end with a
// turn_complete event to honor the interface contract. When Block is set,
// RunTurn instead parks until ctx is cancelled and returns ctx.Err(),
// emulating a long-running turn for interruption tests.
type Engine struct {
	mu sync.Mutex

	// Events is the scripted event sequence enqueued by RunTurn.
	Events []types.Event

	// RunErr is returned by RunTurn after enqueuing Events.
	RunErr error

	// Block makes RunTurn wait for ctx cancellation instead of completing.
	Block bool

	// Started is closed-signalled (one send per call) when RunTurn begins,
	// letting tests synchronise with a blocked turn. May be nil.
	Started chan struct{}

	// ModeValue is what Mode reports. Defaults to engine.ModeSplit.
	ModeValue engine.Mode

	// CloseErr is returned by Close.
	CloseErr error

	// Calls records all RunTurn invocations.
	Calls []TurnCall

	cancelled  int
	interrupts int
	closed     int
}

// RunTurn records the call and plays back the configured script.
func (e *Engine) RunTurn(ctx context.Context, sess *session.Session, userText string, ctrl types.TurnControl, out chan<- types.Event) error {
	e.mu.Lock()
	e.Calls = append(e.Calls, TurnCall{SessionID: sess.ID, Text: userText, Ctrl: ctrl})
	events := make([]types.Event, len(e.Events))
	copy(events, e.Events)
	runErr := e.RunErr
	block := e.Block
	started := e.Started
	e.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}

	if block {
		<-ctx.Done()
		e.mu.Lock()
		e.cancelled++
		e.mu.Unlock()
		return ctx.Err()
	}

	for _, evt := range events {
		select {
		case out <- evt:
		case <-ctx.Done():
			e.mu.Lock()
			e.cancelled++
			e.mu.Unlock()
			return ctx.Err()
		}
	}
	return runErr
}

// Mode implements engine.Engine.
func (e *Engine) Mode() engine.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ModeValue == "" {
		return engine.ModeSplit
	}
	return e.ModeValue
}

// Interrupt implements engine.Engine and counts the call.
func (e *Engine) Interrupt(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interrupts++
	return nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return e.CloseErr
}

// Call returns the i-th recorded RunTurn call.
func (e *Engine) Call(i int) TurnCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Calls[i]
}

// CallCount reports how many turns have been started.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// CancelledCount reports how many turns ended through ctx cancellation.
func (e *Engine) CancelledCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// InterruptCount reports how many Interrupt calls were made.
func (e *Engine) InterruptCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupts
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed > 0
}
