package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/gatelog/internal/db"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

// LedgerStore keeps the ledger in two tables, vehicles_inside and
// vehicle_history. Reads go straight to db; every write is serialized
// through the worker.
type LedgerStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLedgerStore(db *sql.DB, writer *dbpkg.Worker) *LedgerStore {
	return &LedgerStore{db: db, writer: writer}
}

// Load reads both tables in seq order. A table holding a row that can't be
// decoded comes back empty, and the returned error wraps store.ErrDecode.
func (s *LedgerStore) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	var errs []error

	inside, err := s.loadInside(ctx)
	switch {
	case errors.Is(err, store.ErrDecode):
		errs = append(errs, err)
	case err != nil:
		return store.Snapshot{}, err
	default:
		snap.Inside = inside
	}

	history, err := s.loadHistory(ctx)
	switch {
	case errors.Is(err, store.ErrDecode):
		errs = append(errs, err)
	case err != nil:
		return store.Snapshot{}, err
	default:
		snap.History = history
	}

	return snap, errors.Join(errs...)
}

func (s *LedgerStore) loadInside(ctx context.Context) ([]types.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, license_plate, num_people, purpose, approved_by,
       entry_time_ms, status, security_personnel_id
FROM vehicles_inside ORDER BY seq;`)
	if err != nil {
		return nil, fmt.Errorf("load vehicles_inside: %w", err)
	}
	defer rows.Close()

	var out []types.LogEntry
	for rows.Next() {
		var (
			e       types.LogEntry
			entryMs int64
			status  string
		)
		if err := rows.Scan(&e.ID, &e.LicensePlate, &e.NumPeople, &e.Purpose, &e.ApprovedBy,
			&entryMs, &status, &e.SecurityPersonnelID); err != nil {
			return nil, fmt.Errorf("%w: vehicles_inside: %v", store.ErrDecode, err)
		}
		if types.Status(status) != types.StatusInside {
			return nil, fmt.Errorf("%w: vehicles_inside: entry %s has status %q", store.ErrDecode, e.ID, status)
		}
		e.Status = types.StatusInside
		e.EntryTime = fromMillis(entryMs)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load vehicles_inside: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) loadHistory(ctx context.Context) ([]types.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, license_plate, num_people, purpose, approved_by,
       entry_time_ms, exit_time_ms, status, security_personnel_id
FROM vehicle_history ORDER BY seq;`)
	if err != nil {
		return nil, fmt.Errorf("load vehicle_history: %w", err)
	}
	defer rows.Close()

	var out []types.LogEntry
	for rows.Next() {
		var (
			e               types.LogEntry
			entryMs, exitMs int64
			status          string
		)
		if err := rows.Scan(&e.ID, &e.LicensePlate, &e.NumPeople, &e.Purpose, &e.ApprovedBy,
			&entryMs, &exitMs, &status, &e.SecurityPersonnelID); err != nil {
			return nil, fmt.Errorf("%w: vehicle_history: %v", store.ErrDecode, err)
		}
		if types.Status(status) != types.StatusExited {
			return nil, fmt.Errorf("%w: vehicle_history: entry %s has status %q", store.ErrDecode, e.ID, status)
		}
		exit := fromMillis(exitMs)
		e.Status = types.StatusExited
		e.EntryTime = fromMillis(entryMs)
		e.ExitTime = &exit
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load vehicle_history: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) AppendInside(ctx context.Context, e types.LogEntry) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO vehicles_inside(
  id, license_plate, num_people, purpose, approved_by,
  entry_time_ms, status, security_personnel_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.ID, e.LicensePlate, e.NumPeople, e.Purpose, e.ApprovedBy,
			e.EntryTime.UTC().UnixMilli(), string(types.StatusInside), e.SecurityPersonnelID,
		); err != nil {
			return fmt.Errorf("AppendInside insert: %w", err)
		}
		return nil
	})
}

func (s *LedgerStore) MoveToHistory(ctx context.Context, e types.LogEntry) error {
	if e.ExitTime == nil {
		return fmt.Errorf("MoveToHistory %s: exit time not set", e.ID)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM vehicles_inside WHERE id = ?;`, e.ID)
		if err != nil {
			return fmt.Errorf("MoveToHistory delete: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("MoveToHistory rows: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO vehicle_history(
  id, license_plate, num_people, purpose, approved_by,
  entry_time_ms, exit_time_ms, status, security_personnel_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.ID, e.LicensePlate, e.NumPeople, e.Purpose, e.ApprovedBy,
			e.EntryTime.UTC().UnixMilli(), e.ExitTime.UTC().UnixMilli(),
			string(types.StatusExited), e.SecurityPersonnelID,
		); err != nil {
			return fmt.Errorf("MoveToHistory insert: %w", err)
		}
		return nil
	})
}

func (s *LedgerStore) ClearHistory(ctx context.Context) (int, error) {
	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM vehicle_history;`)
		if err != nil {
			return fmt.Errorf("ClearHistory delete: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
