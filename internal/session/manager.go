package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studybuddy/internal/models"
)

// ErrSessionNotFound is returned when an operation names an unknown or
// already-ended session.
var ErrSessionNotFound = errors.New("session not found")

// Teardowner is implemented by providers that can release the provider-side
// resources a workspace accumulated. Cleanup is best effort.
type Teardowner interface {
	Teardown(ctx context.Context, ws *Workspace, fileIDs []string)
}

// Manager owns all live sessions. Sessions are created on first user
// interaction and dropped on teardown; there is no cross-session sharing.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		log:      log,
	}
}

// Create starts a new empty session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.log)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info().Str("session", s.ID).Msg("session created")
	return s
}

// Get looks up a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	return s, ok
}

// End tears a session down: provider-side resources are released best
// effort, then all in-memory state is dropped.
func (m *Manager) End(ctx context.Context, id string, provider Provider) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	ws := s.workspace
	fileIDs := make([]string, 0, len(s.files))
	for _, f := range s.files {
		if f.FileID != "" {
			fileIDs = append(fileIDs, f.FileID)
		}
	}
	s.files = nil
	s.byKey = make(map[string]*models.UploadedFile)
	s.transcript = nil
	s.mu.Unlock()

	if td, ok := provider.(Teardowner); ok {
		td.Teardown(ctx, &ws, fileIDs)
	}

	m.log.Info().Str("session", id).Msg("session ended")
	return nil
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
