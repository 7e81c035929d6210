package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
)

// MemoryStore is an in-process Repository for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	leads    map[string]domain.LeadSnapshot
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		leads:    make(map[string]domain.LeadSnapshot),
	}
}

// GetSession returns a copy of the stored session.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id].Clone(), nil
}

// SaveSession stores a copy of the session.
func (m *MemoryStore) SaveSession(_ context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

// DeleteSession removes a session.
func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// CleanupExpiredSessions removes sessions idle for longer than ttl.
func (m *MemoryStore) CleanupExpiredSessions(_ context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// SaveLead records a lead.
func (m *MemoryStore) SaveLead(_ context.Context, lead domain.LeadSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[lead.SessionID] = lead
	return nil
}

// Leads returns the recorded leads.
func (m *MemoryStore) Leads() []domain.LeadSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.LeadSnapshot, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, l)
	}
	return out
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
