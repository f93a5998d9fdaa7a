package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

// LookupDesk holds resolved lookups until an approval consumes them, so an
// entry can only be approved against a lookup the operator actually ran.
type LookupDesk struct {
	mu      sync.Mutex
	lookups map[string]types.LookupResult
}

func NewLookupDesk() *LookupDesk {
	return &LookupDesk{lookups: make(map[string]types.LookupResult)}
}

// Put assigns r a fresh id and stores it.
func (d *LookupDesk) Put(r types.LookupResult) (types.LookupResult, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return types.LookupResult{}, fmt.Errorf("lookup id: %w", err)
	}
	r.ID = id.String()
	if r.ResolvedAt.IsZero() {
		r.ResolvedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups[r.ID] = r
	return r, nil
}

func (d *LookupDesk) Get(id string) (types.LookupResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.lookups[id]
	return r, ok
}

// Take removes and returns the lookup in one step, so concurrent callers
// can never both spend it.
func (d *LookupDesk) Take(id string) (types.LookupResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.lookups[id]
	if ok {
		delete(d.lookups, id)
	}
	return r, ok
}

// Restore puts back a lookup returned by Take, keeping its id.
func (d *LookupDesk) Restore(r types.LookupResult) {
	if r.ID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups[r.ID] = r
}

// Discard forgets a lookup. Unknown ids are ignored.
func (d *LookupDesk) Discard(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lookups, id)
}

func (d *LookupDesk) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lookups)
}

// PruneOlderThan drops lookups resolved before cutoff.
func (d *LookupDesk) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int64
	for id, r := range d.lookups {
		if r.ResolvedAt.Before(cutoff) {
			delete(d.lookups, id)
			n++
		}
	}
	return n, nil
}
