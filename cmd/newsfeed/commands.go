package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"newsfeed/pkg/classify"
	"newsfeed/pkg/config"
	"newsfeed/pkg/db"
	"newsfeed/pkg/domain"
	"newsfeed/pkg/feed"
	"newsfeed/pkg/httpclient"
	"newsfeed/pkg/pipeline"
	"newsfeed/pkg/ranking"
	"newsfeed/pkg/replication"
	"newsfeed/pkg/worker"
)

func loadConfig(path string) (config.Config, string, error) {
	path = config.ResolvePath(path)
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, path, nil
}

func newRanker(cfg config.Config) ranking.Ranker {
	return ranking.NewRanker(cfg.Ranking.Gravity)
}

func newScheduler(cfg config.Config, store db.Store) *worker.Scheduler {
	client := httpclient.NewClient(httpclient.ParseClientType(cfg.Scheduler.ClientType), 0)
	fetcher := feed.NewFetcher(client, cfg.Scheduler.FetchTimeout)

	category, _ := domain.ParseCategory(cfg.Ingest.DefaultCategory)
	pipe := pipeline.NewPipeline(store, pipeline.Config{
		Classifier:      classify.New(classify.WithKeywords(classify.DefaultRules, cfg.KeywordOverrides())),
		Ranker:          newRanker(cfg),
		MaxTags:         cfg.Ingest.MaxTags,
		DefaultCategory: category,
	})

	return worker.NewScheduler(fetcher, pipe, store, cfg.DomainSources(), worker.Config{
		PoolSize:         cfg.Scheduler.PoolSize,
		FetchTimeout:     cfg.Scheduler.FetchTimeout,
		FailureThreshold: cfg.Scheduler.FailureThreshold,
		MaxBackoff:       cfg.Scheduler.MaxBackoff,
	})
}

func cmdRun(args []string) error {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fset.String("config", "", "config file (default $NEWSFEED_CONFIG)")
	watch := fset.Bool("watch", true, "reload the source list when the config file changes")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		log.Printf("No sources configured; waiting for config changes")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := newScheduler(cfg, store)

	refresher := ranking.NewRefresher(store, newRanker(cfg), ranking.RefresherConfig{
		Interval:  cfg.Ranking.RefreshInterval,
		BatchSize: cfg.Ranking.RefreshBatch,
	}, nil)
	go func() {
		_ = refresher.Run(ctx)
	}()

	if *watch && path != "" {
		w := &config.Watcher{
			Path: path,
			OnChange: func(next config.Config) {
				sched.SetSources(next.DomainSources())
			},
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Printf("Config watch disabled: %v", err)
			}
		}()
	}

	log.Printf("Polling %d sources (store=%s, workers=%d)", len(cfg.Sources), cfg.Storage.Driver, cfg.Scheduler.PoolSize)
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler stopped: %w", err)
	}
	log.Println("Graceful shutdown: scheduler stopped")
	return nil
}

func cmdPoll(args []string) error {
	fset := flag.NewFlagSet("poll", flag.ContinueOnError)
	configPath := fset.String("config", "", "config file (default $NEWSFEED_CONFIG)")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	start := time.Now()
	summary, err := newScheduler(cfg, store).PollOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Polled %d sources in %s\n", len(cfg.Sources), time.Since(start).Round(time.Millisecond))
	fmt.Printf("  updated %d, unchanged %d, failed %d\n", summary.Updated, summary.Unchanged, summary.Failed)
	fmt.Printf("  items: %d new, %d duplicate, %d rejected\n", summary.Created, summary.Duplicate, summary.Rejected)
	return nil
}

func cmdList(args []string) error {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fset.String("config", "", "config file (default $NEWSFEED_CONFIG)")
	category := fset.String("category", "", "only this category")
	since := fset.Duration("since", 0, "only items ingested within this window, e.g. 24h")
	sortBy := fset.String("sort", "score", "score or newest")
	limit := fset.Int("limit", db.DefaultListLimit, "number of items")
	if err := fset.Parse(args); err != nil {
		return err
	}

	q := domain.ItemQuery{Limit: *limit}
	switch *sortBy {
	case "score":
		q.Sort = domain.SortScore
	case "newest":
		q.Sort = domain.SortNewest
	default:
		return fmt.Errorf("--sort must be score or newest")
	}
	if *category != "" {
		cat, ok := domain.ParseCategory(*category)
		if !ok {
			return fmt.Errorf("unknown category %q", *category)
		}
		q.Category = cat
	}
	if *since > 0 {
		q.Since = time.Now().Add(-*since)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := store.ListItems(ctx, q)
	if err != nil {
		return err
	}
	for i, it := range items {
		fmt.Printf("%d. [%s] %s\n", i+1, it.Category, it.Title)
		fmt.Printf("   %s\n", it.CanonicalURL)
		fmt.Printf("   id %s, score %.4f, votes %d/%d, ingested %s\n",
			it.ID, it.Score, it.VoteTotal, it.VoteCount, it.IngestedAt.Format("2006-01-02 15:04"))
		if len(it.Tags) > 0 {
			fmt.Printf("   tags: %s\n", strings.Join(it.Tags, ", "))
		}
		fmt.Println()
	}
	return nil
}

func cmdVote(args []string) error {
	fset := flag.NewFlagSet("vote", flag.ContinueOnError)
	configPath := fset.String("config", "", "config file (default $NEWSFEED_CONFIG)")
	id := fset.String("id", "", "item id")
	delta := fset.Int64("delta", 1, "vote delta, negative for downvotes")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return fmt.Errorf("--id is required")
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	total, score, err := ranking.NewService(store, newRanker(cfg)).Vote(ctx, *id, *delta)
	if err != nil {
		return err
	}
	fmt.Printf("%s: votes %d, score %.4f\n", *id, total, score)
	return nil
}

func cmdReplicate(args []string) error {
	fset := flag.NewFlagSet("replicate", flag.ContinueOnError)
	configPath := fset.String("config", "", "config file (default $NEWSFEED_CONFIG)")
	mongoURI := fset.String("mongo-uri", "", "source MongoDB connection string (default storage.mongoUri)")
	mongoDB := fset.String("mongo-db", "", "source MongoDB database (default storage.mongoDatabase)")
	workers := fset.Int("workers", 5, "parallel batches")
	batch := fset.Int("batch", 100, "items per batch")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == config.StoreMongo {
		return fmt.Errorf("replicate copies from MongoDB into a SQL store; configure storage.driver accordingly")
	}
	uri, database := cfg.Storage.MongoURI, cfg.Storage.MongoDatabase
	if *mongoURI != "" {
		uri = *mongoURI
	}
	if *mongoDB != "" {
		database = *mongoDB
	}
	if uri == "" {
		return fmt.Errorf("--mongo-uri is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source, err := openMongo(ctx, uri, database)
	if err != nil {
		return err
	}
	defer closeMongo(source)

	sink, closeSink, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeSink()

	r, err := replication.NewReplicator(replication.Config{
		Source:    source,
		Sink:      sink,
		BatchSize: *batch,
		Workers:   *workers,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := r.ReplicateItems(ctx)
	if err != nil {
		return fmt.Errorf("replication failed: %w", err)
	}
	log.Printf("Done. %d processed, %d inserted, %d already present. Duration: %s",
		res.Processed, res.Inserted, res.Skipped, time.Since(start))
	return nil
}

func cmdDiscover(args []string) error {
	fset := flag.NewFlagSet("discover", flag.ContinueOnError)
	pageURL := fset.String("url", "", "page to inspect")
	clientType := fset.String("client", "browser", "HTTP client profile: feed, browser or cloudflare")
	timeout := fset.Duration("timeout", 20*time.Second, "request timeout")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*pageURL) == "" {
		return fmt.Errorf("--url is required")
	}

	fetcher := feed.NewFetcher(httpclient.NewClient(httpclient.ParseClientType(*clientType), 0), *timeout)
	links, err := fetcher.Discover(context.Background(), *pageURL)
	if err != nil {
		return err
	}
	for i, l := range links {
		fmt.Printf("%d. %s\n   %s (%s)\n", i+1, l.URL, l.Title, l.Type)
	}
	return nil
}
