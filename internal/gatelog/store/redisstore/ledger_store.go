// Package redisstore stores the ledger as two JSON arrays under fixed keys,
// vehiclesInside and vehicleHistory, so other tools reading the same keys
// see the whole collection in one value.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

const (
	InsideKey  = "vehiclesInside"
	HistoryKey = "vehicleHistory"
)

// LedgerStore is a Redis-backed store.LedgerStore. Each mutation is a
// WATCH/MULTI transaction over the keys it touches; a transaction that
// loses a race is retried once.
type LedgerStore struct {
	client     *redis.Client
	insideKey  string
	historyKey string
}

// Option configures a LedgerStore.
type Option func(*LedgerStore)

// WithKeyPrefix namespaces both keys, e.g. "gate1:" gives
// "gate1:vehiclesInside".
func WithKeyPrefix(prefix string) Option {
	return func(s *LedgerStore) {
		s.insideKey = prefix + InsideKey
		s.historyKey = prefix + HistoryKey
	}
}

func NewLedgerStore(client *redis.Client, opts ...Option) *LedgerStore {
	s := &LedgerStore{
		client:     client,
		insideKey:  InsideKey,
		historyKey: HistoryKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *LedgerStore) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	var errs []error

	inside, err := readList(ctx, s.client, s.insideKey)
	switch {
	case errors.Is(err, store.ErrDecode):
		errs = append(errs, err)
	case err != nil:
		return store.Snapshot{}, err
	default:
		snap.Inside = inside
	}

	history, err := readList(ctx, s.client, s.historyKey)
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

func (s *LedgerStore) AppendInside(ctx context.Context, e types.LogEntry) error {
	return s.txn(ctx, func(tx *redis.Tx) error {
		inside, err := readList(ctx, tx, s.insideKey)
		if err != nil && !errors.Is(err, store.ErrDecode) {
			return err
		}
		inside = append(inside, e)

		data, err := json.Marshal(inside)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.insideKey, data, 0)
			return nil
		})
		return err
	}, s.insideKey)
}

func (s *LedgerStore) MoveToHistory(ctx context.Context, e types.LogEntry) error {
	return s.txn(ctx, func(tx *redis.Tx) error {
		inside, err := readList(ctx, tx, s.insideKey)
		if err != nil && !errors.Is(err, store.ErrDecode) {
			return err
		}
		history, err := readList(ctx, tx, s.historyKey)
		if err != nil && !errors.Is(err, store.ErrDecode) {
			return err
		}

		idx := -1
		for i := range inside {
			if inside[i].ID == e.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return store.ErrNotFound
		}
		inside = append(inside[:idx], inside[idx+1:]...)
		history = append(history, e)

		insideData, err := json.Marshal(inside)
		if err != nil {
			return err
		}
		historyData, err := json.Marshal(history)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.insideKey, insideData, 0)
			p.Set(ctx, s.historyKey, historyData, 0)
			return nil
		})
		return err
	}, s.insideKey, s.historyKey)
}

func (s *LedgerStore) ClearHistory(ctx context.Context) (int, error) {
	var n int
	err := s.txn(ctx, func(tx *redis.Tx) error {
		history, err := readList(ctx, tx, s.historyKey)
		if err != nil && !errors.Is(err, store.ErrDecode) {
			return err
		}
		n = len(history)
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, s.historyKey)
			return nil
		})
		return err
	}, s.historyKey)
	return n, err
}

func (s *LedgerStore) txn(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	err := s.client.Watch(ctx, fn, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		err = s.client.Watch(ctx, fn, keys...)
	}
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// readList decodes the JSON array under key. A missing key is an empty
// list; an undecodable value is an empty list plus store.ErrDecode, and
// the next write replaces it.
func readList(ctx context.Context, c getter, key string) ([]types.LogEntry, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var out []types.LogEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrDecode, key, err)
	}
	return out, nil
}
