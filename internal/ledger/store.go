package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/models"
)

// Store persists meeting records. Implementations must report expired and
// absent ids identically (errs.ErrNotFound) so existence never leaks.
type Store interface {
	// Put stores a meeting. Re-storing the same meeting is harmless.
	Put(ctx context.Context, m *models.Meeting) error

	// Get retrieves a meeting by id, or errs.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Meeting, error)

	// Delete removes a meeting. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes every meeting whose deadline has passed and
	// returns the number removed. Backends with native TTLs may return
	// zero without scanning.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is a mutex-based in-memory meeting store.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[string]models.Meeting
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{meetings: make(map[string]models.Meeting)}
}

// Put stores a meeting.
func (s *MemoryStore) Put(ctx context.Context, m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[m.ID] = *m
	return nil
}

// Get retrieves a meeting by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := m
	return &copied, nil
}

// Delete removes a meeting.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meetings, id)
	return nil
}

// DeleteExpired removes meetings past their deadline.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, m := range s.meetings {
		if now.After(m.ExpiresAt) {
			delete(s.meetings, id)
			removed++
		}
	}
	return removed, nil
}
