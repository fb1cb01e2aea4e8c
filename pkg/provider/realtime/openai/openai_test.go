package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/MrWong99/visema/pkg/provider/realtime"
	"github.com/MrWong99/visema/pkg/types"
)

func newTestSession(t *testing.T) *session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &session{
		events: make(chan realtime.Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

func dispatch(t *testing.T, s *session, raw string) {
	t.Helper()
	var evt serverEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	s.handleServerEvent(&evt)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New with empty apiKey: want error, got nil")
	}
}

func TestAudioDeltaTranslation(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)

	// 4800 bytes of 16-bit PCM at 24kHz = 100ms.
	pcm := make([]byte, 4800)
	encoded := base64.StdEncoding.EncodeToString(pcm)
	dispatch(t, s, `{"type":"response.output_audio.delta","delta":"`+encoded+`"}`)
	dispatch(t, s, `{"type":"response.output_audio.delta","delta":"`+encoded+`"}`)

	first := (<-s.events).(realtime.AudioEvent)
	if first.Chunk.DurationMs != 100 {
		t.Errorf("first chunk duration = %v, want 100", first.Chunk.DurationMs)
	}
	if first.Chunk.TimestampMs != 0 {
		t.Errorf("first chunk timestamp = %v, want 0", first.Chunk.TimestampMs)
	}
	if first.Chunk.SampleRate != 24000 || first.Chunk.Encoding != types.EncodingPCM {
		t.Errorf("chunk format = %d/%q, want 24000/pcm", first.Chunk.SampleRate, first.Chunk.Encoding)
	}

	second := (<-s.events).(realtime.AudioEvent)
	if second.Chunk.TimestampMs != 100 {
		t.Errorf("second chunk timestamp = %v, want 100 (cursor advanced)", second.Chunk.TimestampMs)
	}
}

func TestAudioDeltaIgnoresBadPayloads(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)

	dispatch(t, s, `{"type":"response.output_audio.delta","delta":""}`)
	dispatch(t, s, `{"type":"response.output_audio.delta","delta":"%%%not-base64%%%"}`)

	select {
	case evt := <-s.events:
		t.Errorf("unexpected event %T for bad payloads", evt)
	default:
	}
}

func TestTranscriptDeltaTranslation(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	dispatch(t, s, `{"type":"response.output_audio_transcript.delta","delta":"Hel"}`)
	dispatch(t, s, `{"type":"response.output_audio_transcript.delta","delta":"lo"}`)

	if got := (<-s.events).(realtime.TextDeltaEvent); got.Token != "Hel" {
		t.Errorf("first token = %q, want Hel", got.Token)
	}
	if got := (<-s.events).(realtime.TextDeltaEvent); got.Token != "lo" {
		t.Errorf("second token = %q, want lo", got.Token)
	}
}

func TestResponseDoneTranslation(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	dispatch(t, s, `{"type":"response.done","response":{"id":"resp_123","status":"completed"}}`)

	got := (<-s.events).(realtime.TurnCompleteEvent)
	if got.TurnID != "resp_123" {
		t.Errorf("TurnID = %q, want resp_123", got.TurnID)
	}
}

func TestCancelledResponseDoneSwallowed(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	dispatch(t, s, `{"type":"response.done","response":{"id":"resp_123","status":"cancelled"}}`)

	select {
	case evt := <-s.events:
		t.Errorf("unexpected event %T for cancelled response", evt)
	default:
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	dispatch(t, s, `{"type":"rate_limits.updated"}`)
	dispatch(t, s, `{"type":"session.updated"}`)

	select {
	case evt := <-s.events:
		t.Errorf("unexpected event %T for ignored server events", evt)
	default:
	}
}
