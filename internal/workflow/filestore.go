package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileStore keeps one JSON document per session under a directory, so
// sessions survive process restarts. Writes go through a temp file and
// rename to avoid torn state on crash.
type fileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a Store persisting sessions as JSON files in dir.
func NewFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

func (f *fileStore) path(sessionID string) string {
	return filepath.Join(f.dir, sessionID+".json")
}

func (f *fileStore) Load(sessionID string) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(sessionID)
}

func (f *fileStore) read(sessionID string) (*State, error) {
	data, err := os.ReadFile(f.path(sessionID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &st, nil
}

func (f *fileStore) Save(st *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := st.clone()
	c.UpdatedAt = time.Now()
	return f.write(c)
}

func (f *fileStore) write(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, st.SessionID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(st.SessionID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace session state: %w", err)
	}
	return nil
}

func (f *fileStore) Reset(sessionID string, preserveSettings bool) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read(sessionID)
	if err != nil {
		return nil, err
	}

	fresh := &State{SessionID: sessionID, UpdatedAt: time.Now()}
	if preserveSettings {
		fresh.Settings = st.Settings
	}
	if err := f.write(fresh); err != nil {
		return nil, err
	}
	return fresh.clone(), nil
}
