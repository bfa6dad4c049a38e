package state

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an in-memory store useful for unit tests and local
// development without a backend.
func NewMemory() Store {
	return &memoryStore{values: make(map[string][]byte)}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return nil, ErrKeyAbsent
	}
	return append([]byte(nil), value...), nil
}

func (s *memoryStore) Insert(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; exists {
		return ErrKeyExists
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryStore) Replace(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		return ErrKeyAbsent
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		return ErrKeyAbsent
	}
	delete(s.values, key)
	return nil
}
