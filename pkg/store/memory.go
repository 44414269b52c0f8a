package store

import (
	"sync"

	"github.com/dsa-judge/dsactl/pkg/models"
)

// MemoryStore keeps the session in process memory
type MemoryStore struct {
	session *models.Session
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored session
func (s *MemoryStore) Load() (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, ErrNoSession
	}
	cp := *s.session
	return &cp, nil
}

// Save replaces the stored session
func (s *MemoryStore) Save(session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.session = &cp
	return nil
}

// Clear drops the stored session
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
