// Package openai implements the realtime.Provider interface for OpenAI's
// Realtime API.
//
// The WebSocket connection is session-scoped, not turn-scoped: Connect is
// called once and the handle is reused for every turn. Audio arrives as
// base64-encoded 16-bit PCM at 24 kHz, which the session decodes and stamps
// onto the connection's playback clock before forwarding.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/visema/pkg/provider/realtime"
	"github.com/MrWong99/visema/pkg/types"
)

var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	sampleRate = 24000

	// createdTimeout bounds the wait for the session.created handshake.
	createdTimeout = 10 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI realtime model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements realtime.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string

	// active holds the most recently connected session, for Health.
	active atomic.Pointer[session]
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai realtime: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Connect establishes a new Realtime session. It sends session.update with
// the instructions and voice, waits for session.created, then starts the
// receive loop.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai realtime: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:      conn,
		events:    make(chan realtime.Event, 64),
		ctx:       sessCtx,
		cancel:    sessCancel,
		connected: time.Now(),
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai realtime: session update: %w", err)
	}
	if err := sess.awaitCreated(ctx); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("openai realtime: handshake: %w", err)
	}

	go sess.receiveLoop()

	p.active.Store(sess)
	return sess, nil
}

// Health reports the state of the most recent session: connected sessions are
// healthy, with latency set to the connection's age.
func (p *Provider) Health(context.Context) types.HealthStatus {
	sess := p.active.Load()
	if sess == nil || sess.isClosed() {
		return types.HealthStatus{Healthy: false, Detail: "disconnected"}
	}
	age := float64(time.Since(sess.connected).Microseconds()) / 1000
	return types.HealthStatus{Healthy: true, LatencyMs: age, Detail: "connected"}
}

// Capabilities implements realtime.Provider.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: true,
		SupportsEmotion:   true, // via session instructions
		MaxTextLength:     128_000 * 4 / 2,
		SupportedEmotions: types.EmotionLabels(),
	}
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities        []string `json:"modalities"`
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format"`
	OutputAudioFormat string   `json:"output_audio_format"`

	// TurnDetection is always serialized as null: server VAD stays off
	// because turns are driven by client text, not microphone audio.
	TurnDetection *struct{} `json:"turn_detection"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []conversationPart `json:"content"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.output_audio.delta / response.output_audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// response.done
	Response *responseInfo `json:"response,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

type responseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan realtime.Event

	mu     sync.Mutex
	errVal error
	closed bool

	// audioCursor is the playback position of the next audio chunk, in ms.
	audioCursor float64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	connected time.Time
}

func (s *session) sendSessionUpdate(cfg realtime.SessionConfig) error {
	return s.writeJSON(sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Modalities:        []string{"text", "audio"},
			Instructions:      cfg.Instructions,
			Voice:             cfg.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	})
}

// awaitCreated reads messages until session.created arrives, so the handle is
// usable the moment Connect returns.
func (s *session) awaitCreated(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, createdTimeout)
	defer cancel()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "session.created":
			return nil
		case "error":
			msg := "unknown error"
			if evt.Error != nil && evt.Error.Message != "" {
				msg = evt.Error.Message
			}
			return fmt.Errorf("server rejected session: %s", msg)
		}
	}
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai realtime: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads server events and translates them onto the events
// channel. It owns the channel: it closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeOnce.Do(func() { close(s.events) })

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.output_audio.delta":
		if evt.Delta == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audioData) == 0 {
			return
		}
		chunk := types.AudioChunk{
			Data:       audioData,
			DurationMs: types.EstimatePCMDurationMs(audioData, sampleRate),
			SampleRate: sampleRate,
			Encoding:   types.EncodingPCM,
		}
		s.mu.Lock()
		chunk.TimestampMs = s.audioCursor
		s.audioCursor += chunk.DurationMs
		s.mu.Unlock()

		s.emit(realtime.AudioEvent{Chunk: chunk})

	case "response.output_audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.emit(realtime.TextDeltaEvent{Token: evt.Delta})

	case "response.done":
		id, status := "unknown", ""
		if evt.Response != nil {
			id, status = evt.Response.ID, evt.Response.Status
		}
		// A cancelled response's done marker must not complete the next
		// turn, so it is swallowed here.
		if status == "cancelled" {
			return
		}
		s.emit(realtime.TurnCompleteEvent{TurnID: id})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		slog.Error("realtime API error", "error", msg)

	case "session.updated":
		slog.Debug("realtime session updated")
	}
}

func (s *session) emit(evt realtime.Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendUserText appends the text as a user conversation item and triggers
// response generation.
func (s *session) SendUserText(_ context.Context, text string) error {
	if s.isClosed() {
		return fmt.Errorf("openai realtime: session closed")
	}

	msg := createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    "user",
			Content: []conversationPart{{Type: "input_text", Text: text}},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// CancelResponse sends response.cancel and discards events already buffered
// for the aborted response.
func (s *session) CancelResponse(context.Context) error {
	if s.isClosed() {
		return nil
	}
	if err := s.writeJSON(map[string]string{"type": "response.cancel"}); err != nil {
		return err
	}
	for {
		select {
		case _, ok := <-s.events:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

// Events returns the session's event stream.
func (s *session) Events() <-chan realtime.Event { return s.events }

// Err returns the error that terminated the session, if any.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
