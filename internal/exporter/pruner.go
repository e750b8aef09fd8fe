package exporter

import (
	"context"
	"time"
)

// DefaultPruneInterval is how often the Pruner runs when not configured.
const DefaultPruneInterval = time.Hour

// Prunable is a store whose old rows can be deleted, such as the state
// history or the audit log.
type Prunable interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Pruner periodically deletes rows older than the retention period.
type Pruner struct {
	name      string
	repo      Prunable
	retention time.Duration
	interval  time.Duration
	logger    Logger
}

// NewPruner creates a pruner for repo; name labels its log lines. A
// non-positive retention disables it.
func NewPruner(name string, repo Prunable, retention, interval time.Duration, logger Logger) *Pruner {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pruner{name: name, repo: repo, retention: retention, interval: interval, logger: logger}
}

// Run prunes once immediately and then every interval until ctx is done.
func (p *Pruner) Run(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("pruning disabled", "store", p.name)
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PruneNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PruneNow(ctx)
		}
	}
}

// PruneNow deletes expired rows and returns how many went.
func (p *Pruner) PruneNow(ctx context.Context) int64 {
	n, err := p.repo.Prune(ctx, p.retention)
	if err != nil {
		p.logger.Warn("prune failed", "store", p.name, "error", err)
		return 0
	}
	if n > 0 {
		p.logger.Info("pruned", "store", p.name, "deleted", n, "retention", p.retention.String())
	}
	return n
}
