package store

import "sync"

// StringMap is a durable string-to-string snapshot (tokens, user agents).
// Set writes through to storage immediately: a token refreshed by one worker
// must be visible to later workers before the cycle-end flush.
type StringMap interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Reload() error
}

// FileStringMap keeps the whole mapping in one JSON file.
type FileStringMap struct {
	file *snapshotFile
	mu   sync.RWMutex
	m    map[string]string
}

func NewFileStringMap(path string) (*FileStringMap, error) {
	s := &FileStringMap{
		file: &snapshotFile{path: path},
		m:    make(map[string]string),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStringMap) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *FileStringMap) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	snapshot := make(map[string]string, len(s.m))
	for k, v := range s.m {
		snapshot[k] = v
	}
	return s.file.save(snapshot)
}

func (s *FileStringMap) Reload() error {
	loaded := make(map[string]string)
	if err := s.file.load(&loaded); err != nil {
		return err
	}
	s.mu.Lock()
	s.m = loaded
	s.mu.Unlock()
	return nil
}

// MemoryStringMap is a volatile StringMap for tests.
type MemoryStringMap struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStringMap() *MemoryStringMap {
	return &MemoryStringMap{m: make(map[string]string)}
}

func (s *MemoryStringMap) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStringMap) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStringMap) Reload() error { return nil }
