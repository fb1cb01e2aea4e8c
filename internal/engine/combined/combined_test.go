package combined_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/visema/internal/engine/combined"
	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/provider/avatar/stub"
	"github.com/MrWong99/visema/pkg/provider/realtime"
	rtmock "github.com/MrWong99/visema/pkg/provider/realtime/mock"
	"github.com/MrWong99/visema/pkg/types"
)

func newEngine(t *testing.T, rt *rtmock.Provider) *combined.Engine {
	t.Helper()
	eng, err := combined.New(context.Background(), rt, stub.New(), "You are Assistant.", "alloy")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestNewPassesSessionConfig(t *testing.T) {
	t.Parallel()

	rt := &rtmock.Provider{Session: rtmock.NewSession()}
	newEngine(t, rt)

	if len(rt.Configs) != 1 {
		t.Fatalf("Connect calls = %d, want 1", len(rt.Configs))
	}
	cfg := rt.Configs[0]
	if cfg.Instructions != "You are Assistant." || cfg.Voice != "alloy" {
		t.Errorf("SessionConfig = %+v, want instructions and voice forwarded", cfg)
	}
}

func TestNewPropagatesConnectError(t *testing.T) {
	t.Parallel()

	rt := &rtmock.Provider{ConnectErr: errors.New("dial refused")}
	if _, err := combined.New(context.Background(), rt, stub.New(), "", ""); err == nil {
		t.Fatal("New with failing Connect: want error, got nil")
	}
}

func TestRunTurnForwardsMixedStream(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	sess.Responses = [][]realtime.Event{{
		realtime.TextDeltaEvent{Token: "Hello "},
		realtime.TextDeltaEvent{Token: "there."},
		realtime.AudioEvent{Chunk: types.AudioChunk{
			Data: []byte("pcm"), TimestampMs: 0, DurationMs: 80,
			SampleRate: 24000, Encoding: types.EncodingPCM,
		}},
		realtime.TurnCompleteEvent{TurnID: "resp_abc"},
	}}
	rt := &rtmock.Provider{Session: sess}
	eng := newEngine(t, rt)

	s := session.New("s1", types.DefaultTurnControl(), "Assistant")
	out := make(chan types.Event, 256)
	if err := eng.RunTurn(context.Background(), s, "hi", types.DefaultTurnControl(), out); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	close(out)

	var events []types.Event
	for evt := range out {
		events = append(events, evt)
	}

	// text, text, audio, 2 frames (80ms at 25fps), turn_complete.
	if len(events) != 6 {
		t.Fatalf("events = %d (%#v), want 6", len(events), events)
	}
	if tc, ok := events[5].(types.TurnCompleteEvent); !ok || tc.TurnID != "resp_abc" {
		t.Errorf("final event = %#v, want turn_complete with provider id", events[5])
	}
	if _, ok := events[2].(types.AudioChunkEvent); !ok {
		t.Errorf("event 2 = %T, want AudioChunkEvent", events[2])
	}
	if f, ok := events[3].(types.VideoFrameEvent); !ok || f.FrameIndex != 0 {
		t.Errorf("event 3 = %#v, want first video frame", events[3])
	}

	if len(sess.Sent) != 1 || sess.Sent[0] != "hi" {
		t.Errorf("Sent = %v, want the user text", sess.Sent)
	}
	history := s.History()
	if len(history) != 2 || history[1].Content != "Hello there." {
		t.Errorf("history = %+v, want user + accumulated assistant text", history)
	}
	if got := s.State(); got != session.StateTurnComplete {
		t.Errorf("state = %q, want TURN_COMPLETE", got)
	}
}

func TestRunTurnSendErrorFailsTurn(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	sess.SendErr = errors.New("socket gone")
	rt := &rtmock.Provider{Session: sess}
	eng := newEngine(t, rt)

	s := session.New("s1", types.DefaultTurnControl(), "Assistant")
	out := make(chan types.Event, 16)
	err := eng.RunTurn(context.Background(), s, "hi", types.DefaultTurnControl(), out)
	if err == nil || !strings.Contains(err.Error(), "socket gone") {
		t.Fatalf("RunTurn error = %v, want send failure", err)
	}
}

func TestRunTurnSessionClosedMidTurn(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	sess.Responses = [][]realtime.Event{{
		realtime.TextDeltaEvent{Token: "Hel"},
	}}
	rt := &rtmock.Provider{Session: sess}
	eng := newEngine(t, rt)

	s := session.New("s1", types.DefaultTurnControl(), "Assistant")
	out := make(chan types.Event, 16)

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.RunTurn(context.Background(), s, "hi", types.DefaultTurnControl(), out)
	}()
	<-out // the lone text delta
	sess.SetErr(errors.New("connection reset"))
	sess.Close()

	err := <-errCh
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("RunTurn error = %v, want session error", err)
	}
}

func TestRunTurnCancellation(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	sess.Responses = [][]realtime.Event{{
		realtime.TextDeltaEvent{Token: "Hel"},
		// No turn_complete: the response hangs until cancelled.
	}}
	rt := &rtmock.Provider{Session: sess}
	eng := newEngine(t, rt)

	ctx, cancel := context.WithCancel(context.Background())
	s := session.New("s1", types.DefaultTurnControl(), "Assistant")
	out := make(chan types.Event, 16)

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.RunTurn(ctx, s, "hi", types.DefaultTurnControl(), out)
	}()
	<-out
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunTurn error = %v, want context.Canceled", err)
	}
}

func TestInterruptCancelsBackendResponse(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	rt := &rtmock.Provider{Session: sess}
	eng := newEngine(t, rt)

	if err := eng.Interrupt(context.Background()); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if sess.Cancels != 1 {
		t.Errorf("CancelResponse calls = %d, want 1", sess.Cancels)
	}
}
