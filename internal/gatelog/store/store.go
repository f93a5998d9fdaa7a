// Package store defines the durable ledger interface. Backends live in the
// memory, sqlite and redis subpackages.
package store

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

var (
	ErrNotFound = errors.New("entry not found")

	// ErrDecode marks a stored collection that could not be decoded. Load
	// still returns a usable snapshot with that collection empty.
	ErrDecode = errors.New("stored ledger could not be decoded")
)

// Snapshot is the full ledger as read at startup. Both slices are in
// insertion order.
type Snapshot struct {
	Inside  []types.LogEntry
	History []types.LogEntry
}

// LedgerStore persists the two ledger collections.
type LedgerStore interface {
	Load(ctx context.Context) (Snapshot, error)
	AppendInside(ctx context.Context, e types.LogEntry) error

	// MoveToHistory removes the entry with e.ID from the inside collection
	// and appends e to history in one step. ErrNotFound if no such entry
	// is inside; nothing changes in that case.
	MoveToHistory(ctx context.Context, e types.LogEntry) error

	// ClearHistory empties history and reports how many entries it held.
	ClearHistory(ctx context.Context) (int, error)
}
