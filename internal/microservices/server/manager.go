package server

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"pingpong/internal/shared"
)

type SessionManager struct {
	sessions map[string]*Session
	// key: session ID, value: live session
	mu     sync.RWMutex
	logger *slog.Logger
}

// constructor for SessionManager
func NewSessionManager(logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

func (m *SessionManager) AddSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.logger.Info("session_added",
		"session_id", s.ID,
		"remote_addr", s.RemoteAddr(),
	)
}

func (m *SessionManager) RemoveSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.ID)
	m.logger.Info("session_removed",
		"session_id", s.ID,
	)
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Session returns the info of one live session.
func (m *SessionManager) Session(id string) (shared.SessionInfo, bool) {
	s, ok := m.Get(id)
	if !ok {
		return shared.SessionInfo{}, false
	}
	return s.Info(), true
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseSession closes the connection of a single session.
func (m *SessionManager) CloseSession(id, reason string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err := s.Close(reason); err != nil {
		return err
	}
	m.logger.Info("session_closed",
		"session_id", id,
		"reason", reason,
	)
	return nil
}

// Sessions returns a snapshot of every live session, oldest first.
func (m *SessionManager) Sessions() []shared.SessionInfo {
	m.mu.RLock()
	out := make([]shared.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// CloseAllSessions closes every live connection. Sessions unregister
// themselves once their task has finished.
func (m *SessionManager) CloseAllSessions(reason string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, s := range m.sessions {
		if err := s.Close(reason); err != nil {
			m.logger.Warn("session_close_failed",
				"session_id", id,
				"error", err.Error(),
			)
			continue
		}
		m.logger.Info("session_closed",
			"session_id", id,
		)
	}
}
