package workflow

import (
	"sync"
	"time"
)

// Store persists workflow state per session. Implementations must be safe
// for concurrent use across sessions; within one session the Controller is
// the only writer.
type Store interface {
	Load(sessionID string) (*State, error)
	Save(st *State) error
	// Reset returns the session to its initial state. With preserveSettings
	// the Settings block is kept byte-identical and everything else is
	// cleared; without it the settings are dropped too.
	Reset(sessionID string, preserveSettings bool) (*State, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewMemoryStore creates a process-local Store keyed by session ID.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*State),
	}
}

func (m *memoryStore) Load(sessionID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.clone(), nil
}

func (m *memoryStore) Save(st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := st.clone()
	c.UpdatedAt = time.Now()
	m.sessions[st.SessionID] = c
	return nil
}

func (m *memoryStore) Reset(sessionID string, preserveSettings bool) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	fresh := &State{SessionID: sessionID}
	if preserveSettings {
		fresh.Settings = st.Settings
	}
	fresh.UpdatedAt = time.Now()
	m.sessions[sessionID] = fresh
	return fresh.clone(), nil
}
