// Package mock provides test doubles for the realtime.Provider and
// realtime.SessionHandle interfaces.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/visema/pkg/provider/realtime"
	"github.com/MrWong99/visema/pkg/types"
)

// Provider is a mock implementation of realtime.Provider. Connect hands out
// Session (creating one when unset) and records the config it was given.
type Provider struct {
	mu sync.Mutex

	// Session is the handle Connect returns. Left nil, Connect creates one
	// with NewSession and stores it here.
	Session *Session

	// ConnectErr, if non-nil, is returned from Connect.
	ConnectErr error

	// Configs records every Connect invocation's SessionConfig in order.
	Configs []realtime.SessionConfig
}

var _ realtime.Provider = (*Provider)(nil)

// Connect implements realtime.Provider.
func (p *Provider) Connect(_ context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Health implements realtime.Provider. Always healthy.
func (p *Provider) Health(context.Context) types.HealthStatus {
	return types.HealthStatus{Healthy: true, LatencyMs: 0.1, Detail: "mock realtime"}
}

// Capabilities implements realtime.Provider.
func (p *Provider) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsStreaming: true,
		SupportsEmotion:   true,
		MaxTextLength:     100000,
		SupportedEmotions: types.EmotionLabels(),
	}
}

// Session is a mock implementation of realtime.SessionHandle. Each
// SendUserText call replays the next scripted response onto Events.
type Session struct {
	mu sync.Mutex

	// Responses holds one event sequence per expected SendUserText call, in
	// order. When the script runs out, a minimal generated response is used.
	Responses [][]realtime.Event

	// SendErr, if non-nil, is returned from SendUserText.
	SendErr error

	// Sent records the text of every SendUserText call in order.
	Sent []string

	// Cancels counts CancelResponse calls.
	Cancels int

	events   chan realtime.Event
	done     chan struct{}
	senders  sync.WaitGroup
	errVal   error
	closed   bool
	nextResp int
}

var _ realtime.SessionHandle = (*Session)(nil)

// NewSession returns a Session ready for use.
func NewSession() *Session {
	return &Session{
		events: make(chan realtime.Event, 64),
		done:   make(chan struct{}),
	}
}

// SendUserText records the text and replays the next scripted response.
func (s *Session) SendUserText(_ context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("mock realtime: session closed")
	}
	if s.SendErr != nil {
		err := s.SendErr
		s.mu.Unlock()
		return err
	}
	s.Sent = append(s.Sent, text)

	var resp []realtime.Event
	if s.nextResp < len(s.Responses) {
		resp = s.Responses[s.nextResp]
	} else {
		resp = []realtime.Event{
			realtime.TextDeltaEvent{Token: "ok"},
			realtime.TurnCompleteEvent{TurnID: fmt.Sprintf("resp_%d", s.nextResp)},
		}
	}
	s.nextResp++
	s.senders.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.senders.Done()
		for _, e := range resp {
			select {
			case s.events <- e:
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

// CancelResponse counts the call and discards buffered events.
func (s *Session) CancelResponse(context.Context) error {
	s.mu.Lock()
	s.Cancels++
	s.mu.Unlock()
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

// Events implements realtime.SessionHandle.
func (s *Session) Events() <-chan realtime.Event { return s.events }

// Err implements realtime.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// SetErr makes Err return the given error, emulating a transport failure.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errVal = err
}

// Close implements realtime.SessionHandle. The events channel is closed only
// after every in-flight replay goroutine has stopped. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	go func() {
		s.senders.Wait()
		close(s.events)
	}()
	return nil
}
