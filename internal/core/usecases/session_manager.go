package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionManager owns the live sessions and expires idle ones.
type SessionManager struct {
	deps    SessionDeps
	cfg     SessionConfig
	idleTTL time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager. A non-positive idleTTL disables expiry.
func NewSessionManager(deps SessionDeps, cfg SessionConfig, idleTTL time.Duration) *SessionManager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		deps:     deps,
		cfg:      cfg,
		idleTTL:  idleTTL,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a random id.
func (m *SessionManager) Create() *Session {
	s := NewSession(uuid.NewString(), m.deps, m.cfg)

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	m.logger.Info("session created", "session_id", s.ID)
	return s
}

// Get returns a live session.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and forgets a session.
func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.Close()
	metrics.ActiveSessions.Set(float64(n))
	return nil
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle since before now-idleTTL and returns how many.
func (m *SessionManager) Sweep(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTTL)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		m.logger.Info("session expired", "session_id", s.ID)
	}
	metrics.ActiveSessions.Set(float64(n))
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (m *SessionManager) Run(ctx context.Context) {
	if m.idleTTL <= 0 {
		return
	}
	interval := m.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// CloseAll closes every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
	metrics.ActiveSessions.Set(0)
}
