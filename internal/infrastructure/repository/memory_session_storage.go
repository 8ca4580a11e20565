package repository

import (
	"context"
	"sync"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/ports"
)

// MemorySessionStorage keeps sessions in process memory.
// Suitable for tests and single instance development servers.
type MemorySessionStorage struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemorySessionStorage creates an empty in-memory storage
func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{
		sessions: make(map[string]*domain.Session),
	}
}

var _ ports.SessionStorage = (*MemorySessionStorage)(nil)

func (s *MemorySessionStorage) StoreSession(ctx context.Context, session *domain.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session.Clone(session.ID)
	return true, nil
}

func (s *MemorySessionStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return session.Clone(session.ID), nil
}

func (s *MemorySessionStorage) DeleteSession(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return true, nil
}

// Len returns the number of stored sessions
func (s *MemorySessionStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
