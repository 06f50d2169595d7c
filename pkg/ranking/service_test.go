package ranking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"testing"
	"time"

	"newsfeed/pkg/db"
	"newsfeed/pkg/domain"
)

func seedItem(t *testing.T, store *db.MemoryStore, id string, published *time.Time, scoredAt time.Time) {
	t.Helper()
	_, err := store.InsertIfAbsent(context.Background(), &domain.ContentItem{
		ID:             id,
		ContentAddress: "addr-" + id,
		PublishedAt:    published,
		IngestedAt:     now,
		ScoredAt:       scoredAt,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestService_Vote(t *testing.T) {
	store := db.NewMemoryStore()
	seedItem(t, store, "a", hoursAgo(2), now)
	svc := NewService(store, Ranker{Gravity: 2, Now: func() time.Time { return now }})

	ctx := context.Background()
	for _, d := range []int64{1, 1, 1, -1} {
		if _, _, err := svc.Vote(ctx, "a", d); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}

	total, score, err := svc.Vote(ctx, "a", 1)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if want := 3.0 / 16.0; math.Abs(score-want) > 1e-12 {
		t.Errorf("score = %v, want %v", score, want)
	}

	item, _ := store.GetItem(ctx, "a")
	if item.Score != score || item.VoteCount != 5 {
		t.Errorf("cached item = score %v count %d", item.Score, item.VoteCount)
	}
}

func TestService_Vote_Concurrent(t *testing.T) {
	store := db.NewMemoryStore()
	seedItem(t, store, "a", nil, now)
	svc := NewService(store, Ranker{Gravity: 2, Now: func() time.Time { return now }})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = svc.Vote(context.Background(), "a", 1)
		}()
	}
	wg.Wait()

	total, _ := store.GetVoteTotal(context.Background(), "a")
	if total != 50 {
		t.Errorf("lost votes: total = %d, want 50", total)
	}
}

func TestService_Vote_UnknownItem(t *testing.T) {
	svc := NewService(db.NewMemoryStore(), NewRanker(DefaultGravity))
	_, _, err := svc.Vote(context.Background(), "missing", 1)
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("err = %v, want db.ErrNotFound", err)
	}
}

func TestRefresher_Sweep(t *testing.T) {
	store := db.NewMemoryStore()
	stale := now.Add(-time.Hour)
	for i := 0; i < 7; i++ {
		seedItem(t, store, fmt.Sprintf("s-%d", i), hoursAgo(float64(i)), stale)
	}
	seedItem(t, store, "fresh", nil, now)
	ctx := context.Background()
	_ = store.IncrementVotes(ctx, "s-0", 4)

	var logs bytes.Buffer
	r := NewRefresher(store,
		Ranker{Gravity: 2, Now: func() time.Time { return now }},
		RefresherConfig{Interval: 10 * time.Minute, BatchSize: 3},
		log.New(&logs, "", 0),
	)

	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 7 {
		t.Errorf("rescored %d items, want 7", n)
	}

	item, _ := store.GetItem(ctx, "s-0")
	if item.Score != 1 || !item.ScoredAt.Equal(now) {
		t.Errorf("s-0 = score %v at %v, want 1 at %v", item.Score, item.ScoredAt, now)
	}

	n, err = r.Sweep(ctx)
	if err != nil || n != 0 {
		t.Errorf("second sweep = (%d, %v), want (0, nil)", n, err)
	}
}

func TestRefresher_Sweep_CutoffIsExclusive(t *testing.T) {
	store := db.NewMemoryStore()
	seedItem(t, store, "edge", nil, now.Add(-time.Hour))

	r := NewRefresher(store, Ranker{Gravity: 2, Now: func() time.Time { return now }},
		RefresherConfig{Interval: time.Hour}, log.New(&bytes.Buffer{}, "", 0))

	n, err := r.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Sweep = (%d, %v), want (0, nil) for an item scored exactly one interval ago", n, err)
	}
}

func TestRefresher_RunStopsOnCancel(t *testing.T) {
	store := db.NewMemoryStore()
	seedItem(t, store, "a", nil, now.Add(-2*time.Hour))

	r := NewRefresher(store, Ranker{Gravity: 2, Now: func() time.Time { return now }},
		RefresherConfig{Interval: time.Hour}, log.New(&bytes.Buffer{}, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		item, _ := store.GetItem(context.Background(), "a")
		if item.ScoredAt.Equal(now) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial sweep did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
