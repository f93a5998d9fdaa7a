package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

// LedgerStore keeps both collections in process memory. It is intended for
// tests and dev environments; nothing survives a restart.
type LedgerStore struct {
	mu      sync.RWMutex
	inside  []types.LogEntry
	history []types.LogEntry
}

func New() *LedgerStore {
	return &LedgerStore{}
}

// Seed replaces the stored collections. Test-only helper.
func (s *LedgerStore) Seed(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inside = append([]types.LogEntry(nil), snap.Inside...)
	s.history = append([]types.LogEntry(nil), snap.History...)
}

func (s *LedgerStore) Load(_ context.Context) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Snapshot{
		Inside:  append([]types.LogEntry(nil), s.inside...),
		History: append([]types.LogEntry(nil), s.history...),
	}, nil
}

func (s *LedgerStore) AppendInside(_ context.Context, e types.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inside = append(s.inside, e)
	return nil
}

func (s *LedgerStore) MoveToHistory(_ context.Context, e types.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.inside {
		if s.inside[i].ID != e.ID {
			continue
		}
		s.inside = append(s.inside[:i:i], s.inside[i+1:]...)
		s.history = append(s.history, e)
		return nil
	}
	return store.ErrNotFound
}

func (s *LedgerStore) ClearHistory(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	s.history = nil
	return n, nil
}
