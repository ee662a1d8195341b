package storage

import (
	"context"
	"sync"
)

type MemoryStorage struct {
	mu      sync.RWMutex
	current map[string]string
	threads map[string][]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		current: make(map[string]string),
		threads: make(map[string][]string),
	}
}

func (s *MemoryStorage) GetCurrentThread(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current[userID], nil
}

func (s *MemoryStorage) SetCurrentThread(ctx context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current[userID] = threadID
	return nil
}

func (s *MemoryStorage) GetThreads(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads, exists := s.threads[userID]
	if !exists {
		return []string{}, nil
	}
	return append([]string(nil), threads...), nil
}

func (s *MemoryStorage) SetThreads(ctx context.Context, userID string, threadIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[userID] = append([]string(nil), threadIDs...)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
