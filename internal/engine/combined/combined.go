// Package combined implements the combined-mode turn engine: text and audio
// come from one persistent realtime backend session, and only avatar
// rendering runs locally.
//
// The backend connection is session-scoped: it is established once when the
// engine is constructed and reused for every turn. Compared to the split
// pipeline this removes sentence buffering entirely, so the first audio chunk
// arrives as soon as the model starts speaking.
package combined

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/visema/internal/control"
	"github.com/MrWong99/visema/internal/engine"
	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/provider/avatar"
	"github.com/MrWong99/visema/pkg/provider/realtime"
	"github.com/MrWong99/visema/pkg/types"
)

// Engine implements engine.Engine in combined mode.
type Engine struct {
	handle  realtime.SessionHandle
	avatarP avatar.Provider

	closeOnce sync.Once
	closeErr  error
}

var _ engine.Engine = (*Engine)(nil)

// New connects to the realtime backend once and returns an Engine bound to
// that session. instructions and voice configure the backend session for its
// whole lifetime.
func New(ctx context.Context, provider realtime.Provider, avatarP avatar.Provider, instructions, voice string) (*Engine, error) {
	handle, err := provider.Connect(ctx, realtime.SessionConfig{
		Instructions: instructions,
		Voice:        voice,
	})
	if err != nil {
		return nil, fmt.Errorf("combined: connect: %w", err)
	}
	return &Engine{handle: handle, avatarP: avatarP}, nil
}

// Mode implements engine.Engine.
func (e *Engine) Mode() engine.Mode { return engine.ModeCombined }

// Interrupt implements engine.Engine. It cancels the backend's in-flight
// response and discards events already buffered for it.
func (e *Engine) Interrupt(ctx context.Context) error {
	return e.handle.CancelResponse(ctx)
}

// Close implements engine.Engine. Idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.handle.Close()
	})
	return e.closeErr
}

// RunTurn implements engine.Engine.
func (e *Engine) RunTurn(ctx context.Context, sess *session.Session, userText string, ctrl types.TurnControl, out chan<- types.Event) error {
	sess.SetState(session.StateCtrlMerge)
	effective := control.Resolve(ctrl, sess.PersonaDefaults())
	warnUnsupportedCharacter(effective.Character)

	sess.AppendHistory("user", userText)
	sess.ResetDrift()

	sess.SetState(session.StateLLMRun)
	if err := e.handle.SendUserText(ctx, userText); err != nil {
		return fmt.Errorf("combined: send user text: %w", err)
	}

	frameCounter := 0
	var fullText string
	for {
		var evt realtime.Event
		var ok bool
		select {
		case evt, ok = <-e.handle.Events():
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			if err := e.handle.Err(); err != nil {
				return fmt.Errorf("combined: session: %w", err)
			}
			return fmt.Errorf("combined: session closed mid-turn")
		}

		switch ev := evt.(type) {
		case realtime.TextDeltaEvent:
			fullText += ev.Token
			if err := emit(ctx, out, types.TextDeltaEvent{Token: ev.Token}); err != nil {
				return err
			}

		case realtime.AudioEvent:
			if err := emit(ctx, out, types.NewAudioEvent(ev.Chunk)); err != nil {
				return err
			}
			sess.SetState(session.StateTTSRun)
			sess.SetState(session.StateAvatarRun)
			n, err := e.renderChunk(ctx, sess, effective, ev.Chunk, frameCounter, out)
			if err != nil {
				return err
			}
			frameCounter += n

		case realtime.TurnCompleteEvent:
			if fullText != "" {
				sess.AppendHistory("assistant", fullText)
			}
			sess.SetState(session.StateTurnComplete)
			return emit(ctx, out, types.TurnCompleteEvent{TurnID: ev.TurnID})
		}
	}
}

// renderChunk drives the avatar over one audio chunk and emits its frames,
// exactly as the split engine does.
func (e *Engine) renderChunk(ctx context.Context, sess *session.Session, effective types.TurnControl, chunk types.AudioChunk, baseFrame int, out chan<- types.Event) (int, error) {
	frames, err := e.avatarP.Animate(ctx, chunk, effective, baseFrame)
	if err != nil {
		return 0, fmt.Errorf("avatar: %w", err)
	}
	n := 0
	for r := range frames {
		if r.Err != nil {
			return n, fmt.Errorf("avatar stream: %w", r.Err)
		}
		drift := sess.Drift().Update(chunk.TimestampMs, r.Frame.TimestampMs)
		if err := emit(ctx, out, types.NewVideoEvent(r.Frame, drift)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// warnUnsupportedCharacter logs when character knobs deviate from the
// defaults: the realtime transport has no way to apply them, and silently
// ignoring an explicit setting would be confusing.
func warnUnsupportedCharacter(cc types.CharacterControl) {
	def := types.DefaultCharacterControl()
	if cc.SpeechRate == def.SpeechRate &&
		cc.PitchShift == def.PitchShift &&
		cc.Expressivity == def.Expressivity &&
		cc.MotionGain == def.MotionGain {
		return
	}
	slog.Warn("character control not supported by realtime transport",
		"speech_rate", cc.SpeechRate,
		"pitch_shift", cc.PitchShift,
		"expressivity", cc.Expressivity,
		"motion_gain", cc.MotionGain)
}

func emit(ctx context.Context, out chan<- types.Event, evt types.Event) error {
	select {
	case out <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
