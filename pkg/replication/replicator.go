// Package replication copies content items between stores.
package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"newsfeed/pkg/domain"
)

const (
	defaultBatchSize = 100
	defaultWorkers   = 5
)

// ItemSource lists every content item. *db.MongoStore and *db.SQLStore
// satisfy it.
type ItemSource interface {
	AllItems(ctx context.Context) ([]domain.ContentItem, error)
}

// ItemSink stores items with the same dedup rule as ingestion.
type ItemSink interface {
	InsertIfAbsent(ctx context.Context, item *domain.ContentItem) (bool, error)
}

// Config wires the replication dependencies.
type Config struct {
	Source    ItemSource
	Sink      ItemSink
	BatchSize int
	Workers   int
	Logger    *log.Logger
}

// Result counts what one run did.
type Result struct {
	Processed int
	Inserted  int
	Skipped   int // already present in the sink, or without a content address
}

// Replicator copies every content item from one store into another.
//
// This is a one-shot, "copy everything" flow. Reruns are idempotent because
// the sink dedups by content address.
type Replicator struct {
	source    ItemSource
	sink      ItemSink
	batchSize int
	workers   int
	logger    *log.Logger
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("replication source is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("replication sink is required")
	}
	r := &Replicator{
		source:    cfg.Source,
		sink:      cfg.Sink,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		logger:    cfg.Logger,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.workers <= 0 {
		r.workers = defaultWorkers
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r, nil
}

// ReplicateItems reads all items from the source and inserts the ones the
// sink does not have yet.
func (r *Replicator) ReplicateItems(ctx context.Context) (Result, error) {
	items, err := r.source.AllItems(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read source items: %w", err)
	}

	r.logger.Printf("Loaded %d items from source, processing in batches...", len(items))

	res, err := r.processBatches(ctx, items)
	if err != nil {
		return res, err
	}

	r.logger.Printf("Replication complete: processed %d items, inserted %d new items", res.Processed, res.Inserted)
	return res, nil
}

// processBatches processes all items in batches in parallel. The first batch
// error cancels the remaining batches.
func (r *Replicator) processBatches(ctx context.Context, items []domain.ContentItem) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type batchJob struct {
		batch []domain.ContentItem
		start int
		end   int
	}

	type batchResult struct {
		processed int
		inserted  int
		err       error
	}

	numBatches := (len(items) + r.batchSize - 1) / r.batchSize
	jobs := make(chan batchJob, numBatches)
	results := make(chan batchResult, numBatches)

	for start := 0; start < len(items); start += r.batchSize {
		end := calculateBatchEnd(start, r.batchSize, len(items))
		jobs <- batchJob{batch: items[start:end], start: start, end: end}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				inserted, err := r.processBatch(ctx, job.batch, job.start, job.end)
				results <- batchResult{
					processed: len(job.batch),
					inserted:  inserted,
					err:       err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var res Result
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		res.Processed += result.processed
		res.Inserted += result.inserted
		if res.Processed%1000 == 0 {
			r.logProgress(res, len(items))
		}
	}
	res.Skipped = res.Processed - res.Inserted

	if firstErr != nil {
		return res, firstErr
	}
	r.logProgress(res, len(items))
	return res, nil
}

func calculateBatchEnd(start, batchSize, totalLen int) int {
	end := start + batchSize
	if end > totalLen {
		return totalLen
	}
	return end
}

// processBatch inserts one batch and returns how many items were new.
func (r *Replicator) processBatch(ctx context.Context, batch []domain.ContentItem, start, end int) (int, error) {
	inserted := 0
	for i := range batch {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		item := batch[i]
		if item.ContentAddress == "" {
			continue
		}
		created, err := r.sink.InsertIfAbsent(ctx, &item)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return inserted, err
			}
			return inserted, fmt.Errorf("insert batch [%d:%d] item %s: %w", start, end, item.ID, err)
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}

func (r *Replicator) logProgress(res Result, total int) {
	r.logger.Printf("Progress: processed %d/%d items, inserted %d new items", res.Processed, total, res.Inserted)
}
