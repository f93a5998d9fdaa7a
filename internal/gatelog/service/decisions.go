package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

// DecisionDesk parks destructive ledger actions until the operator answers.
// A pending decision never expires; it is resolved exactly once, either by
// confirming (the action runs) or cancelling (nothing happens).
type DecisionDesk struct {
	mu      sync.Mutex
	ledger  *LedgerService
	pending map[string]types.PendingDecision
	now     func() time.Time
}

func NewDecisionDesk(ledger *LedgerService) *DecisionDesk {
	return &DecisionDesk{
		ledger:  ledger,
		pending: make(map[string]types.PendingDecision),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *DecisionDesk) Request(action types.Action) (types.PendingDecision, error) {
	pd := types.PendingDecision{Action: action}

	switch action.Kind {
	case types.ActionMarkExit:
		if action.EntryID == "" {
			return types.PendingDecision{}, ErrInvalidAction
		}
		pd.Title = "Confirm Exit"
		pd.Description = "Are you sure you want to mark this vehicle as exited? This action will move it to history."
	case types.ActionClearHistory:
		pd.Action.EntryID = ""
		pd.Title = "Confirm Clear History"
		pd.Description = "Are you sure you want to clear ALL vehicle history? This action cannot be undone."
	default:
		return types.PendingDecision{}, ErrInvalidAction
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.PendingDecision{}, err
	}
	pd.ID = id.String()
	pd.RequestedAt = d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[pd.ID] = pd
	return pd, nil
}

// Pending lists unresolved decisions, oldest first.
func (d *DecisionDesk) Pending() []types.PendingDecision {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.PendingDecision, 0, len(d.pending))
	for _, pd := range d.pending {
		out = append(out, pd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve answers a pending decision. If the confirmed action fails in the
// store the decision stays pending so the operator can try again.
func (d *DecisionDesk) Resolve(ctx context.Context, id string, confirmed bool) (types.DecisionOutcome, error) {
	d.mu.Lock()
	pd, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.mu.Unlock()

	if !ok {
		return types.DecisionOutcome{}, ErrDecisionNotFound
	}

	out := types.DecisionOutcome{
		DecisionID: pd.ID,
		Action:     pd.Action,
		Confirmed:  confirmed,
	}
	if !confirmed {
		out.ResolvedAt = d.now()
		return out, nil
	}

	var err error
	switch pd.Action.Kind {
	case types.ActionMarkExit:
		var e types.LogEntry
		e, out.Applied, err = d.ledger.MarkExit(ctx, pd.Action.EntryID)
		if out.Applied {
			out.Entry = &e
		}
	case types.ActionClearHistory:
		_, err = d.ledger.ClearHistory(ctx)
		out.Applied = err == nil
	}
	if err != nil {
		d.mu.Lock()
		d.pending[pd.ID] = pd
		d.mu.Unlock()
		return types.DecisionOutcome{}, err
	}

	out.ResolvedAt = d.now()
	return out, nil
}
