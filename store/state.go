package store

import (
	"sync"

	"naoris_farm/models"
)

// StateStore persists the session-key to LocalState snapshot. The orchestrator
// loads it fresh at the top of each cycle and rewrites it once at the end.
type StateStore interface {
	Load() (map[string]models.LocalState, error)
	Save(map[string]models.LocalState) error
}

// FileStateStore keeps the snapshot in one JSON file.
type FileStateStore struct {
	file *snapshotFile
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{file: &snapshotFile{path: path}}
}

func (s *FileStateStore) Load() (map[string]models.LocalState, error) {
	snapshot := make(map[string]models.LocalState)
	if err := s.file.load(&snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *FileStateStore) Save(snapshot map[string]models.LocalState) error {
	return s.file.save(snapshot)
}

// MemoryStateStore is a volatile StateStore for tests. Load returns a copy so
// callers cannot mutate the stored snapshot in place.
type MemoryStateStore struct {
	mu sync.RWMutex
	m  map[string]models.LocalState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{m: make(map[string]models.LocalState)}
}

func (s *MemoryStateStore) Load() (map[string]models.LocalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.LocalState, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStateStore) Save(snapshot map[string]models.LocalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]models.LocalState, len(snapshot))
	for k, v := range snapshot {
		s.m[k] = v
	}
	return nil
}
