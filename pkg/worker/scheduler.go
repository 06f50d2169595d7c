package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"newsfeed/pkg/domain"
)

// Scheduler defaults.
const (
	DefaultPoolSize         = 8
	DefaultFetchTimeout     = 20 * time.Second
	DefaultFailureThreshold = 3
	DefaultMaxBackoff       = 6 * time.Hour
	DefaultInterval         = 15 * time.Minute
)

// Config tunes a Scheduler. Zero values get defaults; FailureThreshold only
// does when negative.
type Config struct {
	PoolSize         int
	FetchTimeout     time.Duration
	FailureThreshold int
	MaxBackoff       time.Duration
	Logger           *log.Logger
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.FailureThreshold < 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Scheduler polls every source on its own timer. At most PoolSize fetches are
// in flight at once, across all sources.
type Scheduler struct {
	cfg    Config
	worker *Worker
	sem    *semaphore.Weighted
	logger *log.Logger

	mu      sync.Mutex
	sources map[string]domain.Source
	order   []string
	runCtx  context.Context
	loops   map[string]context.CancelFunc
	wg      sync.WaitGroup

	fatalOnce sync.Once
	fatalErr  error
	cancelRun context.CancelFunc
}

// NewScheduler creates a scheduler over the given sources.
func NewScheduler(poller Poller, processor BatchProcessor, store SourceStore, sources []domain.Source, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:     cfg,
		worker:  NewWorker(poller, processor, store, cfg.FetchTimeout, cfg.Logger),
		sem:     semaphore.NewWeighted(int64(cfg.PoolSize)),
		logger:  cfg.Logger,
		sources: make(map[string]domain.Source),
		loops:   make(map[string]context.CancelFunc),
	}
	s.setSourcesLocked(sources)
	return s
}

// Run polls every source immediately and then on its interval until ctx is
// cancelled. It returns nil on cancellation and db.ErrInvariantViolation if
// the storage layer reported one.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.runCtx = ctx
	s.cancelRun = cancel
	for _, id := range s.order {
		s.startLocked(id)
	}
	n := len(s.order)
	s.mu.Unlock()

	s.logger.Printf("Scheduler: started %d sources (pool size %d)", n, s.cfg.PoolSize)
	<-ctx.Done()

	s.mu.Lock()
	s.runCtx = nil
	for id, stop := range s.loops {
		stop()
		delete(s.loops, id)
	}
	s.mu.Unlock()
	s.wg.Wait()

	if s.fatalErr != nil {
		return s.fatalErr
	}
	s.logger.Printf("Scheduler: stopped")
	return nil
}

// SetSources replaces the source list. Running loops of removed sources are
// stopped and new sources start polling immediately. Stored validators and
// failure counters are untouched.
func (s *Scheduler) SetSources(sources []domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setSourcesLocked(sources)
	if s.runCtx == nil {
		return
	}
	for id, stop := range s.loops {
		if _, ok := s.sources[id]; !ok {
			stop()
			delete(s.loops, id)
		}
	}
	for _, id := range s.order {
		if _, ok := s.loops[id]; !ok {
			s.startLocked(id)
		}
	}
}

// Sources returns the configured sources in order.
func (s *Scheduler) Sources() []domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Source, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sources[id])
	}
	return out
}

func (s *Scheduler) setSourcesLocked(sources []domain.Source) {
	s.sources = make(map[string]domain.Source, len(sources))
	s.order = s.order[:0]
	for _, src := range sources {
		if src.ID == "" {
			continue
		}
		if _, dup := s.sources[src.ID]; dup {
			s.logger.Printf("Scheduler: duplicate source id %s ignored", src.ID)
			continue
		}
		s.sources[src.ID] = src
		s.order = append(s.order, src.ID)
	}
}

func (s *Scheduler) source(id string) (domain.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	return src, ok
}

func (s *Scheduler) startLocked(id string) {
	ctx, stop := context.WithCancel(s.runCtx)
	s.loops[id] = stop
	s.wg.Add(1)
	go s.loop(ctx, id)
}

// loop is the per-source timer. The first poll happens right away.
func (s *Scheduler) loop(ctx context.Context, id string) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		src, ok := s.source(id)
		if !ok {
			return
		}

		rep, err := s.pollBounded(ctx, src)
		if err != nil {
			s.fatal(err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		delay := NextDelay(src.Interval, rep.FailureCount, s.cfg.FailureThreshold, s.cfg.MaxBackoff)
		if rep.FailureCount > s.cfg.FailureThreshold {
			s.logger.Printf("Scheduler: source %s backing off for %v after %d failures", id, delay, rep.FailureCount)
		}
		timer.Reset(delay)
	}
}

// pollBounded runs one poll while holding a pool slot.
func (s *Scheduler) pollBounded(ctx context.Context, src domain.Source) (Report, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Report{SourceID: src.ID, Err: err}, nil
	}
	defer s.sem.Release(1)
	return s.worker.PollSource(ctx, src)
}

func (s *Scheduler) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.logger.Printf("Scheduler: FATAL: %v", err)
		s.mu.Lock()
		s.fatalErr = err
		cancel := s.cancelRun
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}
