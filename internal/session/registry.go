package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/visema/internal/control"
	"github.com/MrWong99/visema/pkg/types"
)

// ErrSessionNotFound is returned by Get for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Registry is the process-wide map of live sessions.
//
// All methods are safe for concurrent use; each session itself is operated on
// by at most one connection.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create allocates a fresh session for the given persona. Unknown persona ids
// fall back to the default preset with a warning. Non-nil emotion or
// character overrides replace the corresponding half of the persona defaults
// after validation.
func (r *Registry) Create(personaID string, emotion *types.EmotionControl, character *types.CharacterControl) (*Session, error) {
	preset, known := control.PresetFor(personaID)
	if !known {
		if hint := control.Suggest(personaID); hint != "" {
			slog.Warn("unknown persona, using default", "persona_id", personaID, "did_you_mean", hint)
		} else {
			slog.Warn("unknown persona, using default", "persona_id", personaID)
		}
	}

	defaults := preset.Control
	if emotion != nil {
		if err := emotion.Validate(); err != nil {
			return nil, fmt.Errorf("emotion override: %w", err)
		}
		defaults.Emotion = *emotion
	}
	if character != nil {
		if err := character.Validate(); err != nil {
			return nil, fmt.Errorf("character override: %w", err)
		}
		defaults.Character = *character
	}

	sess := New(uuid.NewString(), defaults, preset.DisplayName)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	slog.Info("session created", "session_id", sess.ID, "persona", preset.ID)
	return sess, nil
}

// Get returns the session with the given id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Close removes the session with the given id and reports whether it was
// still registered. Idempotent; later calls return false.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if existed {
		slog.Info("session closed", "session_id", id)
	}
	return existed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
