package types

import (
	"encoding/json"
	"fmt"
)

// Outbound event type tags.
const (
	EventTextDelta    = "text_delta"
	EventAudioChunk   = "audio_chunk"
	EventVideoFrame   = "video_frame"
	EventTurnComplete = "turn_complete"
	EventError        = "error"
)

// Inbound event type tags.
const (
	EventUserText      = "user_text"
	EventInterrupt     = "interrupt"
	EventControlUpdate = "control_update"
)

// Event is an outbound protocol event. The set is closed: exactly the five
// types below implement it. On the wire each event is a JSON object with a
// "type" discriminator; []byte fields travel base64-encoded per encoding/json
// convention and are raw bytes in memory.
type Event interface {
	// EventType returns the wire discriminator.
	EventType() string

	isEvent()
}

// TextDeltaEvent carries one streamed LLM token.
type TextDeltaEvent struct {
	Token string `json:"token"`
}

func (TextDeltaEvent) EventType() string { return EventTextDelta }
func (TextDeltaEvent) isEvent()          {}

// AudioChunkEvent is the wire form of an AudioChunk.
type AudioChunkEvent struct {
	Data        []byte  `json:"data"`
	TimestampMs float64 `json:"timestamp_ms"`
	DurationMs  float64 `json:"duration_ms"`
	Encoding    string  `json:"encoding"`
	SampleRate  int     `json:"sample_rate"`
}

func (AudioChunkEvent) EventType() string { return EventAudioChunk }
func (AudioChunkEvent) isEvent()          {}

// NewAudioEvent converts an internal chunk to its outbound event.
func NewAudioEvent(c AudioChunk) AudioChunkEvent {
	return AudioChunkEvent{
		Data:        c.Data,
		TimestampMs: c.TimestampMs,
		DurationMs:  c.DurationMs,
		Encoding:    c.Encoding,
		SampleRate:  c.SampleRate,
	}
}

// Chunk converts the event back to the internal form (used when the combined
// provider surfaces audio as events that still have to drive the avatar).
func (e AudioChunkEvent) Chunk() AudioChunk {
	return AudioChunk{
		Data:        e.Data,
		TimestampMs: e.TimestampMs,
		DurationMs:  e.DurationMs,
		Encoding:    e.Encoding,
		SampleRate:  e.SampleRate,
	}
}

// VideoFrameEvent is the wire form of a VideoFrame plus the drift measured
// when the frame was produced.
type VideoFrameEvent struct {
	Data        []byte  `json:"data"`
	TimestampMs float64 `json:"timestamp_ms"`
	FrameIndex  int     `json:"frame_index"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ContentType string  `json:"content_type"`
	DriftMs     float64 `json:"drift_ms"`
}

func (VideoFrameEvent) EventType() string { return EventVideoFrame }
func (VideoFrameEvent) isEvent()          {}

// NewVideoEvent converts an internal frame to its outbound event.
func NewVideoEvent(f VideoFrame, driftMs float64) VideoFrameEvent {
	return VideoFrameEvent{
		Data:        f.Data,
		TimestampMs: f.TimestampMs,
		FrameIndex:  f.FrameIndex,
		Width:       f.Width,
		Height:      f.Height,
		ContentType: f.ContentType,
		DriftMs:     driftMs,
	}
}

// TurnCompleteEvent terminates a successful turn.
type TurnCompleteEvent struct {
	TurnID string `json:"turn_id"`
}

func (TurnCompleteEvent) EventType() string { return EventTurnComplete }
func (TurnCompleteEvent) isEvent()          {}

// ErrorEvent terminates a failed turn. Code is "turn_error" for generator and
// orchestration failures.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorEvent) EventType() string { return EventError }
func (ErrorEvent) isEvent()          {}

// EncodeEvent renders an outbound event to its JSON wire form, splicing in
// the "type" discriminator.
func EncodeEvent(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("types: encode nil event")
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("types: encode %s event: %w", e.EventType(), err)
	}
	head, _ := json.Marshal(struct {
		Type string `json:"type"`
	}{e.EventType()})
	if string(body) == "{}" {
		return head, nil
	}
	// {"type":"…"} + {…fields…} → {"type":"…",…fields…}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// DecodeEvent parses an outbound wire event. Clients and tests use it; the
// server only encodes.
func DecodeEvent(raw []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("types: decode event: %w", err)
	}
	switch head.Type {
	case EventTextDelta:
		var e TextDeltaEvent
		return e, json.Unmarshal(raw, &e)
	case EventAudioChunk:
		var e AudioChunkEvent
		return e, json.Unmarshal(raw, &e)
	case EventVideoFrame:
		var e VideoFrameEvent
		return e, json.Unmarshal(raw, &e)
	case EventTurnComplete:
		var e TurnCompleteEvent
		return e, json.Unmarshal(raw, &e)
	case EventError:
		var e ErrorEvent
		return e, json.Unmarshal(raw, &e)
	default:
		return nil, fmt.Errorf("types: unknown event type %q", head.Type)
	}
}

// InboundEvent is a client-to-server protocol event. The set is closed:
// exactly the three types below implement it.
type InboundEvent interface {
	isInbound()
}

// UserTextEvent starts a new turn, implicitly cancelling any in-flight one.
type UserTextEvent struct {
	Text string

	// Control is the per-turn control; DefaultTurnControl when omitted.
	Control TurnControl
}

func (UserTextEvent) isInbound() {}

// InterruptEvent cancels the in-flight turn without starting a new one.
type InterruptEvent struct{}

func (InterruptEvent) isInbound() {}

// ControlUpdateEvent stores a control to merge into the next turn.
type ControlUpdateEvent struct {
	Control TurnControl
}

func (ControlUpdateEvent) isInbound() {}

// DecodeInbound parses a client wire event. Callers drop events that fail to
// decode (unknown type, malformed JSON, out-of-range controls).
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("types: decode inbound: %w", err)
	}
	switch head.Type {
	case EventUserText:
		var w struct {
			Text    string       `json:"text"`
			Control *TurnControl `json:"control"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("types: decode user_text: %w", err)
		}
		evt := UserTextEvent{Text: w.Text, Control: DefaultTurnControl()}
		if w.Control != nil {
			evt.Control = *w.Control
		}
		return evt, nil
	case EventInterrupt:
		return InterruptEvent{}, nil
	case EventControlUpdate:
		var w struct {
			Control *TurnControl `json:"control"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("types: decode control_update: %w", err)
		}
		evt := ControlUpdateEvent{Control: DefaultTurnControl()}
		if w.Control != nil {
			evt.Control = *w.Control
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("types: unknown inbound event type %q", head.Type)
	}
}
