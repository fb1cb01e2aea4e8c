// Package split implements the split-stage turn engine: LLM tokens are
// segmented into sentences, each sentence is synthesized to audio, and each
// audio chunk drives avatar rendering.
//
// Two tasks cooperate per turn. The producer streams LLM tokens, emits
// text_delta events and pushes complete sentences onto a small bounded queue.
// The consumer pulls sentences, synthesizes them and renders frames, emitting
// audio_chunk and video_frame events. The bounded queue (capacity 2) keeps
// synthesis at most two sentences behind generation without buffering the
// whole answer.
package split

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/visema/internal/control"
	"github.com/MrWong99/visema/internal/engine"
	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/provider/avatar"
	"github.com/MrWong99/visema/pkg/provider/llm"
	"github.com/MrWong99/visema/pkg/provider/tts"
	"github.com/MrWong99/visema/pkg/types"
)

const (
	// sentenceQueueCap bounds how far token generation may run ahead of
	// synthesis, in sentences.
	sentenceQueueCap = 2

	// minFlushLen is the minimum trimmed buffer length for a sentence flush.
	// The floor avoids flushing on abbreviations like "Dr.".
	minFlushLen = 10
)

// sentenceTerminators are the token-final characters that may end a sentence.
const sentenceTerminators = ".!?\n"

// Engine implements engine.Engine in split-stage mode.
type Engine struct {
	llmP    llm.Provider
	ttsP    tts.Provider
	avatarP avatar.Provider
}

var _ engine.Engine = (*Engine)(nil)

// New constructs a split-stage Engine from the three generator providers.
func New(llmP llm.Provider, ttsP tts.Provider, avatarP avatar.Provider) *Engine {
	return &Engine{llmP: llmP, ttsP: ttsP, avatarP: avatarP}
}

// Mode implements engine.Engine.
func (e *Engine) Mode() engine.Mode { return engine.ModeSplit }

// Interrupt implements engine.Engine. Split-stage turns are stopped entirely
// by context cancellation, so there is nothing extra to do.
func (e *Engine) Interrupt(context.Context) error { return nil }

// Close implements engine.Engine.
func (e *Engine) Close() error { return nil }

// RunTurn implements engine.Engine.
func (e *Engine) RunTurn(ctx context.Context, sess *session.Session, userText string, ctrl types.TurnControl, out chan<- types.Event) error {
	sess.SetState(session.StateCtrlMerge)
	effective := control.Resolve(ctrl, sess.PersonaDefaults())

	// The request history must not include the current user text; it is the
	// request's final message. Snapshot before appending.
	history := sess.History()
	sess.AppendHistory("user", userText)
	sess.ResetDrift()

	turnID := uuid.NewString()
	sentences := make(chan string, sentenceQueueCap)
	var fullText string

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		text, err := e.produce(gctx, sess, userText, effective, history, sentences, out)
		fullText = text
		return err
	})
	g.Go(func() error {
		return e.consume(gctx, sess, effective, sentences, out)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if fullText != "" {
		sess.AppendHistory("assistant", fullText)
	}
	sess.SetState(session.StateTurnComplete)
	return emit(ctx, out, types.TurnCompleteEvent{TurnID: turnID})
}

// produce streams LLM tokens, forwards them as text_delta events and pushes
// complete sentences onto the sentence queue. It owns the queue: the closed
// channel is the consumer's end-of-input sentinel. Returns the full response
// text for history.
func (e *Engine) produce(ctx context.Context, sess *session.Session, userText string, effective types.TurnControl, history []types.Message, sentences chan<- string, out chan<- types.Event) (string, error) {
	defer close(sentences)

	sess.SetState(session.StateLLMRun)

	stream, err := e.llmP.StreamTokens(ctx, llm.Request{
		Text:         userText,
		SystemPrompt: control.BuildSystemPrompt(effective, sess.PersonaName),
		History:      history,
		Control:      effective,
	})
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}

	var buf, full strings.Builder
	for chunk := range stream {
		if chunk.FinishReason == llm.FinishReasonError {
			return full.String(), fmt.Errorf("llm stream: %s", chunk.Token)
		}
		if chunk.Token == "" {
			continue
		}

		if err := emit(ctx, out, types.TextDeltaEvent{Token: chunk.Token}); err != nil {
			return full.String(), err
		}
		buf.WriteString(chunk.Token)
		full.WriteString(chunk.Token)

		if !endsSentence(chunk.Token) {
			continue
		}
		seg := strings.TrimSpace(buf.String())
		if len(seg) < minFlushLen {
			continue
		}
		if err := push(ctx, sentences, seg); err != nil {
			return full.String(), err
		}
		buf.Reset()
	}

	if seg := strings.TrimSpace(buf.String()); seg != "" {
		if err := push(ctx, sentences, seg); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

// consume synthesizes each sentence and renders its frames, emitting
// audio_chunk and video_frame events in order. The frame counter runs across
// the whole turn so frame_index stays strictly increasing.
func (e *Engine) consume(ctx context.Context, sess *session.Session, effective types.TurnControl, sentences <-chan string, out chan<- types.Event) error {
	sess.SetState(session.StateTTSRun)

	frameCounter := 0
	for {
		var seg string
		var ok bool
		select {
		case seg, ok = <-sentences:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			return nil
		}

		results, err := e.ttsP.Synthesize(ctx, seg, effective)
		if err != nil {
			return fmt.Errorf("tts: %w", err)
		}
		for r := range results {
			if r.Err != nil {
				return fmt.Errorf("tts stream: %w", r.Err)
			}
			if err := emit(ctx, out, types.NewAudioEvent(r.Chunk)); err != nil {
				return err
			}

			sess.SetState(session.StateAvatarRun)
			n, err := e.renderChunk(ctx, sess, effective, r.Chunk, frameCounter, out)
			if err != nil {
				return err
			}
			frameCounter += n
			sess.SetState(session.StateTTSRun)
		}
	}
}

// renderChunk drives the avatar over one audio chunk and emits its frames.
// Returns the number of frames emitted.
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

// endsSentence reports whether the token's final character can terminate a
// sentence.
func endsSentence(token string) bool {
	return strings.ContainsAny(token[len(token)-1:], sentenceTerminators)
}

func emit(ctx context.Context, out chan<- types.Event, evt types.Event) error {
	select {
	case out <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func push(ctx context.Context, sentences chan<- string, seg string) error {
	select {
	case sentences <- seg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
