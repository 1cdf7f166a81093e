package session

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/windfall/phonoecho/internal/errors"
)

// DefaultMaxSessions bounds the number of live sessions kept in memory.
const DefaultMaxSessions = 10_000

// Manager owns the live sessions. Sessions expire ttl after login; an
// expired or evicted session is closed.
type Manager struct {
	sessions *expirable.LRU[string, *Session]
}

// NewManager creates a new Manager.
func NewManager(maxSessions int, ttl time.Duration) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions: expirable.NewLRU(maxSessions, func(_ string, s *Session) {
			s.Close()
		}, ttl),
	}
}

// Create starts a session for user.
func (m *Manager) Create(user string) *Session {
	s := New(user)
	m.sessions.Add(s.ID, s)
	return s
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, errors.NotFound("session")
	}
	return s, nil
}

// Delete ends a session. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	return m.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Close ends every live session.
func (m *Manager) Close() {
	m.sessions.Purge()
}
