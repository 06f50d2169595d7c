package worker

import (
	"context"
	"sync"

	"newsfeed/pkg/domain"
	"newsfeed/pkg/feed"
)

// Summary aggregates the reports of one PollOnce pass.
type Summary struct {
	Updated   int
	Unchanged int
	Failed    int
	Created   int
	Duplicate int
	Rejected  int
}

func (s *Summary) add(rep Report) {
	switch {
	case rep.Status == feed.StatusUnchanged && rep.Err == nil:
		s.Unchanged++
	case rep.Status == feed.StatusUpdated && rep.Err == nil:
		s.Updated++
	default:
		s.Failed++
	}
	s.Created += rep.Stats.Created
	s.Duplicate += rep.Stats.Duplicate
	s.Rejected += rep.Stats.Rejected
}

// PollOnce polls every source once, PoolSize at a time, and waits for all of
// them. It returns db.ErrInvariantViolation if any poll hit one; the rest of
// the pass is cancelled in that case.
func (s *Scheduler) PollOnce(ctx context.Context) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sources := s.Sources()

	// Create job channel
	jobChan := make(chan domain.Source, len(sources))
	for _, src := range sources {
		jobChan <- src
	}
	close(jobChan)

	type result struct {
		report Report
		err    error
	}
	resultsChan := make(chan result, len(sources))

	workers := s.cfg.PoolSize
	if workers > len(sources) {
		workers = len(sources)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobChan {
				if ctx.Err() != nil {
					continue
				}
				rep, err := s.worker.PollSource(ctx, src)
				resultsChan <- result{report: rep, err: err}
			}
		}()
	}

	// Close results channel when all workers finish
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Aggregate results (single goroutine reads from channel)
	var summary Summary
	var fatalErr error
	for res := range resultsChan {
		if res.err != nil {
			if fatalErr == nil {
				fatalErr = res.err
				s.logger.Printf("Scheduler: FATAL: %v", res.err)
				cancel()
			}
			continue
		}
		summary.add(res.report)
	}

	s.logger.Printf("Completed: %d updated, %d unchanged, %d failed (total: %d); %d new items",
		summary.Updated, summary.Unchanged, summary.Failed, len(sources), summary.Created)
	return summary, fatalErr
}
