package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/events"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/refdata"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
	"github.com/BrandonDHaskell/gatelog/internal/metrics"
)

const DefaultOperatorID = "local_user"

type LedgerDependencies struct {
	Store     store.LedgerStore
	Tables    *refdata.Tables
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Exporter  *Exporter

	// DefaultOperatorID is recorded when an approval carries no operator.
	DefaultOperatorID string

	// Now overrides the clock in tests.
	Now func() time.Time
}

// LedgerService owns the inside and history collections. Every mutation
// holds mu for its full duration and is persisted before it returns.
type LedgerService struct {
	mu sync.Mutex

	store     store.LedgerStore
	tables    *refdata.Tables
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	exporter  *Exporter
	operator  string
	now       func() time.Time

	inside  []types.LogEntry
	history []types.LogEntry
}

// NewLedgerService loads both collections from the store. A collection the
// store could not decode starts out empty; that is logged, not returned.
func NewLedgerService(ctx context.Context, d LedgerDependencies) (*LedgerService, error) {
	s := &LedgerService{
		store:     d.Store,
		tables:    d.Tables,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		logger:    d.Logger,
		exporter:  d.Exporter,
		operator:  strings.TrimSpace(d.DefaultOperatorID),
		now:       d.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.exporter == nil {
		s.exporter = NewExporter(ExportConfig{})
	}
	if s.operator == "" {
		s.operator = DefaultOperatorID
	}
	if s.now == nil {
		// Stores keep millisecond timestamps.
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
	}

	snap, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrDecode) {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
		s.logger.Warn("stored ledger partially unreadable, starting affected collections empty", zap.Error(err))
	}
	s.inside = snap.Inside
	s.history = snap.History
	s.metrics.SetVehiclesInside(len(s.inside))

	return s, nil
}

type ApproveRequest struct {
	LicensePlate string
	NumPeople    int
	Purpose      string
	Lookup       *types.LookupResult
	AuthorityID  string
	OperatorID   string
}

// Approve logs a new entry as inside. The lookup must have identified at
// least one authority; the approving authority may be any known one.
func (s *LedgerService) Approve(ctx context.Context, req ApproveRequest) (types.LogEntry, error) {
	if req.Lookup == nil || len(req.Lookup.Authorities) == 0 {
		return types.LogEntry{}, ErrApprovalRequiresLookup
	}
	auth, ok := s.tables.AuthorityByID(req.AuthorityID)
	if !ok {
		return types.LogEntry{}, ErrAuthorityNotSelected
	}
	if req.NumPeople < 1 {
		return types.LogEntry{}, ErrInvalidNumPeople
	}

	lp := req.LicensePlate
	if lp == "" {
		lp = req.Lookup.LicensePlate
	}
	operator := strings.TrimSpace(req.OperatorID)
	if operator == "" {
		operator = s.operator
	}

	s.mu.Lock()

	id, err := uuid.NewV7()
	if err != nil {
		s.mu.Unlock()
		return types.LogEntry{}, fmt.Errorf("entry id: %w", err)
	}

	e := types.LogEntry{
		ID:                  id.String(),
		LicensePlate:        strings.ToUpper(lp),
		NumPeople:           req.NumPeople,
		Purpose:             req.Purpose,
		ApprovedBy:          auth.Name,
		EntryTime:           s.now(),
		Status:              types.StatusInside,
		SecurityPersonnelID: operator,
	}

	if err := s.store.AppendInside(ctx, e); err != nil {
		s.mu.Unlock()
		return types.LogEntry{}, fmt.Errorf("persist entry: %w", err)
	}
	s.inside = append(s.inside, e)
	s.metrics.IncrementApproved()
	s.metrics.SetVehiclesInside(len(s.inside))
	s.mu.Unlock()

	s.publish(ctx, events.Event{Type: events.EntryApproved, Entry: &e, OccurredAt: e.EntryTime})
	return e, nil
}

// MarkExit moves the entry with the given id from inside to history. An id
// that is not inside is a silent no-op and reports false.
func (s *LedgerService) MarkExit(ctx context.Context, id string) (types.LogEntry, bool, error) {
	s.mu.Lock()

	idx := -1
	for i := range s.inside {
		if s.inside[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return types.LogEntry{}, false, nil
	}

	exited := s.inside[idx].Exited(s.now())

	if err := s.store.MoveToHistory(ctx, exited); err != nil {
		s.mu.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("entry missing from store on exit", zap.String("entry_id", id))
			return types.LogEntry{}, false, nil
		}
		return types.LogEntry{}, false, fmt.Errorf("persist exit: %w", err)
	}

	s.inside = append(s.inside[:idx:idx], s.inside[idx+1:]...)
	s.history = append(s.history, exited)
	s.metrics.IncrementExits()
	s.metrics.SetVehiclesInside(len(s.inside))
	s.mu.Unlock()

	s.publish(ctx, events.Event{Type: events.EntryExited, Entry: &exited, OccurredAt: *exited.ExitTime})
	return exited, true, nil
}

// ClearHistory empties history. Vehicles inside are untouched.
func (s *LedgerService) ClearHistory(ctx context.Context) (int, error) {
	s.mu.Lock()

	n, err := s.store.ClearHistory(ctx)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("clear history: %w", err)
	}
	s.history = nil
	s.metrics.IncrementHistoryCleared()
	at := s.now()
	s.mu.Unlock()

	s.publish(ctx, events.Event{Type: events.HistoryCleared, Cleared: n, OccurredAt: at})
	return n, nil
}

// Inside lists vehicles currently inside in approval order.
func (s *LedgerService) Inside() []types.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LogEntry{}, s.inside...)
}

// History lists exited vehicles in exit order.
func (s *LedgerService) History() []types.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LogEntry{}, s.history...)
}

// ExportHistory renders history as a spreadsheet. ErrExportEmpty when
// there is nothing to export.
func (s *LedgerService) ExportHistory() (Artifact, error) {
	history := s.History()
	if len(history) == 0 {
		return Artifact{}, ErrExportEmpty
	}
	return s.exporter.Build(history, s.now())
}

func (s *LedgerService) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("ledger event publish failed",
			zap.String("event", string(ev.Type)), zap.Error(err))
	}
}
