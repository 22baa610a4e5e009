package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tldr-app/uploader/internal/uploader"
	"go.uber.org/zap"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 256

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// ViewFactory builds the uploader view for a new session.
type ViewFactory func(sessionID string) *uploader.View

// Manager maps browser sessions to their uploader views.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	newView     ViewFactory
	maxSessions int
	logger      *zap.Logger
}

// SessionState holds a view and its bookkeeping.
type SessionState struct {
	View         *uploader.View
	CreatedAt    time.Time
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)
}

// NewManager creates a new session manager. maxSessions <= 0 uses DefaultMaxSessions.
func NewManager(newView ViewFactory, maxSessions int, logger *zap.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		newView:     newView,
		maxSessions: maxSessions,
		logger:      logger.Named("session"),
	}
}

// GetOrCreate returns the view for id, creating a fresh session when id is
// empty or unknown. The returned id is the one the client must use from now on.
func (m *Manager) GetOrCreate(id string) (string, *uploader.View, bool) {
	if id != "" {
		if view, ok := m.Get(id); ok {
			return id, view, false
		}
	}

	m.cleanupOldSessionsIfNeeded()

	id = uuid.New().String()
	view := m.newView(id)
	now := time.Now()

	m.mu.Lock()
	m.sessions[id] = &SessionState{View: view, CreatedAt: now, LastAccessed: now}
	m.mu.Unlock()

	m.logger.Debug("session created", zap.String("session", id[:8]))
	return id, view, true
}

// Get returns the view for id and marks the session as accessed.
func (m *Manager) Get(id string) (*uploader.View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state.View, true
}

// TouchSession updates the last accessed time of a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// Delete removes a session and closes its view.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		state.View.Close()
	}
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// cleanupOldSessionsIfNeeded evicts least recently used idle sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()

	if len(m.sessions) < m.maxSessions {
		m.mu.Unlock()
		return
	}

	type candidate struct {
		id   string
		used time.Time
	}
	var candidates []candidate
	for id, state := range m.sessions {
		if state.View.Busy() {
			continue
		}
		candidates = append(candidates, candidate{id, state.LastAccessed})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].used.Before(candidates[j].used)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	var evicted []*SessionState
	for _, c := range candidates {
		if len(evicted) >= toFree {
			break
		}
		evicted = append(evicted, m.sessions[c.id])
		delete(m.sessions, c.id)
		m.logger.Info("evicted session at capacity", zap.String("session", c.id[:8]))
	}
	m.mu.Unlock()

	for _, state := range evicted {
		state.View.Close()
	}
}

// CleanupOldSessions removes sessions not accessed for maxAge,
// skipping sessions accessed within SessionKeepAliveWindow or with a submit in flight.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	m.mu.Lock()
	var expired []*SessionState
	for id, state := range m.sessions {
		if state.LastAccessed.After(keepAliveCutoff) || state.View.Busy() {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			expired = append(expired, state)
			delete(m.sessions, id)
			m.logger.Info("cleaned up aged session",
				zap.String("session", id[:8]),
				zap.Duration("idle", time.Since(state.LastAccessed).Round(time.Second)))
		}
	}
	m.mu.Unlock()

	for _, state := range expired {
		state.View.Close()
	}
	return len(expired)
}

// RunCleanup calls CleanupOldSessions every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldSessions(maxAge)
		}
	}
}

// Close closes every view, waiting for in-flight submits to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	states := make([]*SessionState, 0, len(m.sessions))
	for id, state := range m.sessions {
		states = append(states, state)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, state := range states {
		state.View.Close()
	}
}
