package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/visema/internal/control"
	"github.com/MrWong99/visema/internal/observe"
	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/types"
)

// outQueueCap bounds how far the pipeline may run ahead of the socket.
const outQueueCap = 64

// StatusSessionNotFound is the close code sent when a client opens the stream
// for an id the registry does not know.
const StatusSessionNotFound websocket.StatusCode = 4004

// handleStream upgrades to WebSocket and runs the connection loop. The
// upgrade happens before the registry lookup so an unknown id can be rejected
// with a proper close frame instead of an HTTP error the client's WS library
// would mangle.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Media frames dominate the stream and are base64 inside JSON;
		// compression buys little and costs CPU per frame.
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}

	sess, err := s.registry.Get(id)
	if err != nil {
		c.Close(StatusSessionNotFound, "Session not found")
		return
	}

	conn := &connection{
		server: s,
		sess:   sess,
		conn:   c,
		out:    make(chan types.Event, outQueueCap),
		log:    observe.Logger(r.Context()).With("session_id", sess.ID),
	}
	conn.run(r.Context())
}

// connection is one live WebSocket attached to a session.
type connection struct {
	server *Server
	sess   *session.Session
	conn   *websocket.Conn
	out    chan types.Event
	log    *slog.Logger

	// mu guards the per-turn latency bookkeeping shared between the turn
	// starter and the send loop.
	mu              sync.Mutex
	turnStart       time.Time
	awaitFirstMedia bool
}

// run drives the connection until the socket errors or ctx ends. On return
// the session is cancelled and removed from the registry.
func (c *connection) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.log.Info("stream opened", "persona", c.sess.PersonaName)

	var sendDone sync.WaitGroup
	sendDone.Add(1)
	go func() {
		defer sendDone.Done()
		defer cancel()
		c.sendLoop(ctx)
	}()

	c.readLoop(ctx)

	cancel()
	c.sess.CancelCurrentTurn()
	// The gauge mirrors registry membership: only the call that actually
	// removes the session decrements, so racing teardowns cannot drive it
	// negative.
	if c.server.registry.Close(c.sess.ID) {
		c.server.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
	sendDone.Wait()
	c.log.Info("stream closed")
}

// sendLoop serialises outbound events onto the socket in queue order.
func (c *connection) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.out:
			data, err := types.EncodeEvent(ev)
			if err != nil {
				c.log.Error("event encoding failed", "type", ev.EventType(), "error", err)
				continue
			}
			if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
				c.log.Warn("socket write failed", "error", err)
				return
			}
			c.server.metrics.RecordOutboundEvent(ctx, ev.EventType())
			c.observeEvent(ctx, ev)
		}
	}
}

// observeEvent records per-event metrics the send loop is positioned to see:
// first-media latency on the first audio chunk of a turn and drift per frame.
func (c *connection) observeEvent(ctx context.Context, ev types.Event) {
	switch e := ev.(type) {
	case types.AudioChunkEvent:
		c.mu.Lock()
		if c.awaitFirstMedia {
			c.awaitFirstMedia = false
			c.server.metrics.FirstMediaLatency.Record(ctx, time.Since(c.turnStart).Seconds())
		}
		c.mu.Unlock()
	case types.VideoFrameEvent:
		c.server.metrics.RecordDrift(ctx, e.DriftMs)
	}
}

// readLoop decodes inbound events and dispatches them. Undecodable messages
// are dropped; the protocol has no inbound error channel.
func (c *connection) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, context.Canceled) {
				c.log.Warn("socket read failed", "error", err)
			}
			return
		}

		evt, err := types.DecodeInbound(data)
		if err != nil {
			c.log.Debug("dropping undecodable inbound event", "error", err)
			continue
		}

		switch e := evt.(type) {
		case types.UserTextEvent:
			c.startTurn(ctx, e)
		case types.InterruptEvent:
			c.interrupt(ctx)
		case types.ControlUpdateEvent:
			c.sess.SetPendingControl(e.Control)
		}
	}
}

// startTurn cancels any in-flight turn (barge-in) and launches the next one.
func (c *connection) startTurn(ctx context.Context, evt types.UserTextEvent) {
	c.sess.CancelCurrentTurn()

	ctrl := evt.Control
	if pending, ok := c.sess.TakePendingControl(); ok {
		ctrl = control.Merge(pending, evt.Control)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.sess.BeginTurn(cancel, done)

	c.mu.Lock()
	c.turnStart = time.Now()
	c.awaitFirstMedia = true
	c.mu.Unlock()
	c.server.metrics.TurnsStarted.Add(ctx, 1)

	go func() {
		defer close(done)
		defer cancel()
		c.finishTurn(ctx, c.server.engine.RunTurn(turnCtx, c.sess, evt.Text, ctrl, c.out))
	}()
}

// finishTurn applies the engine's error contract: nil completed the turn,
// context cancellation means it was interrupted and the stream simply
// truncates, anything else surfaces to the client as an error event.
func (c *connection) finishTurn(connCtx context.Context, err error) {
	elapsed := time.Since(c.turnStartTime())

	switch {
	case err == nil:
		c.sess.SetState(session.StateIdle)
		c.server.metrics.TurnsCompleted.Add(connCtx, 1)
		c.server.metrics.TurnDuration.Record(connCtx, elapsed.Seconds())

	case errors.Is(err, context.Canceled):
		c.sess.SetState(session.StateInterrupted)
		c.sess.SetState(session.StateIdle)
		c.server.metrics.TurnsInterrupted.Add(connCtx, 1)

	default:
		c.log.Error("turn failed", "error", err)
		c.sess.SetState(session.StateTurnError)
		select {
		case c.out <- types.ErrorEvent{Code: "turn_error", Message: err.Error()}:
		case <-connCtx.Done():
		}
		c.sess.SetState(session.StateIdle)
		c.server.metrics.TurnsErrored.Add(connCtx, 1)
	}
}

func (c *connection) turnStartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnStart
}

// interrupt cancels the in-flight turn without starting a new one.
func (c *connection) interrupt(ctx context.Context) {
	c.sess.CancelCurrentTurn()
	if err := c.server.engine.Interrupt(ctx); err != nil {
		c.log.Warn("engine interrupt failed", "error", err)
	}
}
