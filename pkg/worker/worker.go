package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"newsfeed/pkg/db"
	"newsfeed/pkg/domain"
	"newsfeed/pkg/feed"
	"newsfeed/pkg/pipeline"
)

// Poller fetches one source. *feed.Fetcher satisfies it.
type Poller interface {
	Poll(ctx context.Context, src domain.Source) feed.PollResult
}

// BatchProcessor ingests a poll's items. *pipeline.Pipeline satisfies it.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, items []domain.RawItem, src domain.Source) pipeline.BatchStats
}

// SourceStore is the slice of db.Store the scheduler needs.
type SourceStore interface {
	GetSource(ctx context.Context, id string) (domain.Source, error)
	UpsertSource(ctx context.Context, src domain.Source) error
	UpdateSourceValidators(ctx context.Context, id, etag, lastModified string, fetchedAt *time.Time, failureCount int) error
}

// Report is the outcome of one source poll.
type Report struct {
	SourceID     string
	Status       feed.Status
	Stats        pipeline.BatchStats
	FailureCount int
	Err          error
}

// Worker polls a single source and records the result.
type Worker struct {
	poller       Poller
	processor    BatchProcessor
	store        SourceStore
	fetchTimeout time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// NewWorker creates a new worker
func NewWorker(poller Poller, processor BatchProcessor, store SourceStore, fetchTimeout time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		poller:       poller,
		processor:    processor,
		store:        store,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// PollSource fetches src, feeds the items to the pipeline and then persists
// the source's validators and failure counter. The returned error is non-nil
// only for db.ErrInvariantViolation; everything else is reported in Report.
func (w *Worker) PollSource(ctx context.Context, src domain.Source) (rep Report, err error) {
	rep.SourceID = src.ID

	defer func() {
		if r := recover(); r != nil {
			rep.Status = feed.StatusFailed
			rep.Err = fmt.Errorf("poll panicked: %v", r)
			rep.FailureCount = src.FailureCount + 1
			w.logger.Printf("Worker: source %s panicked: %v", src.ID, r)
			w.record(ctx, src, src.Validators(), nil, rep.FailureCount)
			err = nil
		}
	}()

	current, err := w.load(ctx, src)
	if err != nil {
		rep.Status = feed.StatusFailed
		rep.Err = err
		rep.FailureCount = src.FailureCount
		w.logger.Printf("Worker: source %s: %v", src.ID, err)
		return rep, nil
	}
	src = current

	result := w.poll(ctx, src)
	if ctx.Err() != nil {
		// Shutting down: a cancelled poll is not the source's fault.
		rep.Status = result.Status
		rep.FailureCount = src.FailureCount
		rep.Err = ctx.Err()
		return rep, nil
	}
	rep.Status = result.Status

	now := w.now().UTC()
	switch result.Status {
	case feed.StatusUnchanged:
		rep.FailureCount = 0
		w.record(ctx, src, src.Validators(), &now, 0)

	case feed.StatusUpdated:
		rep.Stats = w.processor.ProcessBatch(ctx, result.Items, src)
		if rep.Stats.Fatal() {
			return rep, rep.Stats.Err
		}
		if ctx.Err() != nil {
			rep.FailureCount = src.FailureCount
			rep.Err = ctx.Err()
			w.logger.Printf("Worker: source %s: batch interrupted by shutdown", src.ID)
			return rep, nil
		}
		if rep.Stats.Err != nil {
			// Keep the old validators so the next poll sees these items again.
			rep.Err = rep.Stats.Err
			rep.FailureCount = src.FailureCount + 1
			w.logger.Printf("Worker: source %s: batch incomplete, validators kept: %v", src.ID, rep.Err)
			w.record(ctx, src, src.Validators(), nil, rep.FailureCount)
			return rep, nil
		}
		rep.FailureCount = 0
		w.logger.Printf("Worker: source %s updated: %d created, %d duplicate, %d rejected",
			src.ID, rep.Stats.Created, rep.Stats.Duplicate, rep.Stats.Rejected)
		w.record(ctx, src, result.Validators, &now, 0)

	default:
		rep.Err = result.Err
		rep.FailureCount = src.FailureCount + 1
		validators := src.Validators()
		if !result.Validators.IsZero() {
			validators = result.Validators
		}
		w.logger.Printf("Worker: source %s failed (%d in a row): %v", src.ID, rep.FailureCount, result.Err)
		w.record(ctx, src, validators, nil, rep.FailureCount)
	}
	return rep, nil
}

// load returns the stored runtime state merged with the configured fields,
// registering the source on first sight.
func (w *Worker) load(ctx context.Context, src domain.Source) (domain.Source, error) {
	stored, err := w.store.GetSource(ctx, src.ID)
	if errors.Is(err, db.ErrNotFound) {
		if err := w.store.UpsertSource(ctx, src); err != nil {
			return src, fmt.Errorf("register source: %w", err)
		}
		return src, nil
	}
	if err != nil {
		return src, fmt.Errorf("load source: %w", err)
	}

	stored.URL = src.URL
	stored.Interval = src.Interval
	stored.Category = src.Category
	return stored, nil
}

func (w *Worker) poll(ctx context.Context, src domain.Source) feed.PollResult {
	if w.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.fetchTimeout)
		defer cancel()
	}
	return w.poller.Poll(ctx, src)
}

func (w *Worker) record(ctx context.Context, src domain.Source, v domain.Validators, fetchedAt *time.Time, failures int) {
	if err := w.store.UpdateSourceValidators(ctx, src.ID, v.ETag, v.LastModified, fetchedAt, failures); err != nil {
		w.logger.Printf("Worker: source %s: failed to save poll state: %v", src.ID, err)
	}
}
