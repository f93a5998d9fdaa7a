package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/events"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/refdata"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/service"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store/memory"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

// fakeClock hands out a fixed time that tests advance by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func defaultTables(t *testing.T) *refdata.Tables {
	t.Helper()
	tbl, err := refdata.Default()
	require.NoError(t, err)
	return tbl
}

type ledgerFixture struct {
	ledger *service.LedgerService
	store  *memory.LedgerStore
	events *events.Recorder
	clock  *fakeClock
	tables *refdata.Tables
}

// newTestLedger builds a LedgerService over an in-memory store with a fake
// clock and an event recorder.
func newTestLedger(t *testing.T) *ledgerFixture {
	t.Helper()

	f := &ledgerFixture{
		store:  memory.New(),
		events: &events.Recorder{},
		clock:  newFakeClock(),
		tables: defaultTables(t),
	}

	l, err := service.NewLedgerService(context.Background(), service.LedgerDependencies{
		Store:     f.store,
		Tables:    f.tables,
		Publisher: f.events,
		Logger:    zap.NewNop(),
		Exporter:  service.NewExporter(service.ExportConfig{Location: time.UTC}),
		Now:       f.clock.Now,
	})
	require.NoError(t, err)
	f.ledger = l
	return f
}

// approve runs a lookup for plate/purpose and approves it with the first
// resolved authority.
func (f *ledgerFixture) approve(t *testing.T, plate, purpose string, people int) types.LogEntry {
	t.Helper()

	res, err := service.NewResolver(f.tables).Resolve(plate, purpose)
	require.NoError(t, err)
	require.NotEmpty(t, res.Authorities, "lookup for %q resolved no authority", purpose)

	e, err := f.ledger.Approve(context.Background(), service.ApproveRequest{
		LicensePlate: plate,
		NumPeople:    people,
		Purpose:      purpose,
		Lookup:       &res,
		AuthorityID:  res.Authorities[0].ID,
	})
	require.NoError(t, err)
	return e
}
