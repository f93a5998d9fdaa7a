package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// lookupStore is the slice of LookupDesk the pruner needs.
type lookupStore interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LookupPruner periodically evicts lookups nobody approved against.
// It runs as a background goroutine and is safe to stop via its context
// or the Stop method.
//
// A TTL of 0 disables pruning entirely.
type LookupPruner struct {
	store    lookupStore
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// PrunerConfig holds the parameters for NewLookupPruner.
type PrunerConfig struct {
	// TTL is how long an unused lookup is kept. 0 means keep everything
	// (pruner will not start).
	TTL time.Duration

	// Interval is how often the pruner runs. Defaults to 5 minutes.
	Interval time.Duration
}

// NewLookupPruner creates a pruner but does not start it.
// Call Start to begin the background loop.
func NewLookupPruner(s lookupStore, cfg PrunerConfig, logger *zap.Logger) *LookupPruner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LookupPruner{
		store:    s,
		ttl:      cfg.TTL,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the background loop. It prunes once immediately, then
// repeats on the configured interval. The loop exits when ctx is
// cancelled or Stop is called.
func (p *LookupPruner) Start(ctx context.Context) {
	if p.ttl <= 0 {
		p.logger.Info("lookup pruner disabled (ttl=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("lookup pruner started",
		zap.Duration("ttl", p.ttl), zap.Duration("interval", p.interval))
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *LookupPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *LookupPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *LookupPruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.ttl)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Warn("lookup prune failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Debug("lookup prune",
			zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}
