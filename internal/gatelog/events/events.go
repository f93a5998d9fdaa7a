// Package events publishes ledger transitions to other systems.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

type Type string

const (
	EntryApproved  Type = "entry.approved"
	EntryExited    Type = "entry.exited"
	HistoryCleared Type = "history.cleared"
)

type Event struct {
	Type       Type            `json:"type"`
	Entry      *types.LogEntry `json:"entry,omitempty"`
	Cleared    int             `json:"cleared,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory. Test-only helper.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
