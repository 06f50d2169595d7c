package ranking

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RefresherConfig tunes the periodic score sweep.
type RefresherConfig struct {
	// Interval between sweeps. Items scored longer ago than this are rescored.
	Interval time.Duration
	// BatchSize bounds each ListForRescore call.
	BatchSize int
}

const (
	defaultRefreshInterval = 10 * time.Minute
	defaultRefreshBatch    = 500
)

// Refresher periodically recomputes cached scores so age decay shows up in
// score-ordered reads without recomputing per request.
type Refresher struct {
	store  Store
	ranker Ranker
	cfg    RefresherConfig
	logger *log.Logger
}

// NewRefresher creates a refresher. A nil logger uses log.Default().
func NewRefresher(store Store, ranker Ranker, cfg RefresherConfig, logger *log.Logger) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRefreshInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRefreshBatch
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Refresher{store: store, ranker: ranker, cfg: cfg, logger: logger}
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.sweepAndLog(ctx)
	for {
		select {
		case <-ticker.C:
			r.sweepAndLog(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Refresher) sweepAndLog(ctx context.Context) {
	n, err := r.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		r.logger.Printf("Refresher: sweep failed after %d items: %v", n, err)
		return
	}
	if n > 0 {
		r.logger.Printf("Refresher: rescored %d items", n)
	}
}

// Sweep rescores every item whose score is older than Interval and returns
// how many were updated.
func (r *Refresher) Sweep(ctx context.Context) (int, error) {
	cutoff := r.ranker.now().Add(-r.cfg.Interval)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := r.store.ListForRescore(ctx, cutoff, r.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("list items for rescore: %w", err)
		}
		for _, item := range batch {
			score, at := r.ranker.Score(item.VoteTotal, item.PublishedAt)
			if err := r.store.UpdateScore(ctx, item.ID, score, at); err != nil {
				return total, fmt.Errorf("update score %s: %w", item.ID, err)
			}
			total++
		}
		if len(batch) < r.cfg.BatchSize {
			return total, nil
		}
	}
}
