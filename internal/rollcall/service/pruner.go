package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetentionStore deletes stored items older than a cutoff.
type RetentionStore interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// PrunerConfig configures NewPruner.
type PrunerConfig struct {
	// Retention is how long items are kept. 0 disables pruning.
	Retention time.Duration
	// Interval defaults to 6 hours.
	Interval time.Duration
	Clock    Clock
	Logger   *slog.Logger
}

// Pruner periodically deletes archived unknown-face crops older than the
// retention period.
type Pruner struct {
	store RetentionStore
	cfg   PrunerConfig

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPruner creates a pruner but does not start it.
func NewPruner(st RetentionStore, cfg PrunerConfig) *Pruner {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pruner{store: st, cfg: cfg, done: make(chan struct{})}
}

// Start prunes once immediately and then every Interval until ctx ends or
// Stop is called. With Retention 0 it returns without starting anything.
// Later calls are no-ops.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	if p.cfg.Retention <= 0 {
		p.cfg.Logger.Info("archive pruner disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.cfg.Logger.Info("archive pruner started", "retention", p.cfg.Retention, "interval", p.cfg.Interval)
}

// Stop signals the loop to exit and waits for it. It returns at once when
// the pruner was never started.
func (p *Pruner) Stop() {
	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()

	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-p.done
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	for {
		p.PruneOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-p.cfg.Clock.After(p.cfg.Interval):
		}
	}
}

// PruneOnce runs a single pass and returns the number of deleted items.
// Errors are logged, not returned.
func (p *Pruner) PruneOnce(ctx context.Context) int {
	cutoff := p.cfg.Clock.Now().Add(-p.cfg.Retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.cfg.Logger.Warn("archive prune failed", "error", err)
		return deleted
	}
	if deleted > 0 {
		p.cfg.Logger.Info("archive pruned", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted
}
