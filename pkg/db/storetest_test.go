package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"newsfeed/pkg/domain"
)

// runStoreContract exercises the Store semantics every implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertIfAbsent dedups by content address", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := testItem("id-1", "addr-1", 1)
		created, err := s.InsertIfAbsent(ctx, first)
		if err != nil || !created {
			t.Fatalf("first insert = (%v, %v), want (true, nil)", created, err)
		}

		dup := testItem("id-2", "addr-1", 1)
		dup.Title = "a different title"
		created, err = s.InsertIfAbsent(ctx, dup)
		if err != nil || created {
			t.Fatalf("duplicate insert = (%v, %v), want (false, nil)", created, err)
		}

		got, err := s.GetItem(ctx, "id-1")
		if err != nil {
			t.Fatalf("GetItem: %v", err)
		}
		if got.Title != first.Title || got.ContentAddress != "addr-1" {
			t.Errorf("stored item changed: %+v", got)
		}
		if len(got.Tags) != 2 || got.Tags[0] != "alpha" {
			t.Errorf("tags not round-tripped: %v", got.Tags)
		}
		if got.PublishedAt == nil || !got.PublishedAt.Equal(*first.PublishedAt) {
			t.Errorf("published_at = %v, want %v", got.PublishedAt, first.PublishedAt)
		}
		if _, err := s.GetItem(ctx, "id-2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("duplicate must not be stored, got err %v", err)
		}
	})

	t.Run("concurrent inserts create exactly one item", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 20
		var created int32
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.InsertIfAbsent(ctx, testItem(fmt.Sprintf("race-%d", i), "same-address", 1))
				if err != nil {
					errs <- err
					return
				}
				if ok {
					atomic.AddInt32(&created, 1)
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("insert error: %v", err)
		}
		if created != 1 {
			t.Errorf("created = %d, want 1", created)
		}
		items, err := s.ListItems(ctx, domain.ItemQuery{Limit: 100})
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		if len(items) != 1 {
			t.Errorf("expected 1 stored item, got %d", len(items))
		}
	})

	t.Run("votes are atomic increments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.InsertIfAbsent(ctx, testItem("v-1", "addr-v", 1)); err != nil {
			t.Fatalf("insert: %v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() { defer wg.Done(); _ = s.IncrementVotes(ctx, "v-1", 1) }()
			go func() { defer wg.Done(); _ = s.IncrementVotes(ctx, "v-1", -1) }()
		}
		wg.Wait()
		if err := s.IncrementVotes(ctx, "v-1", 3); err != nil {
			t.Fatalf("IncrementVotes: %v", err)
		}

		total, err := s.GetVoteTotal(ctx, "v-1")
		if err != nil {
			t.Fatalf("GetVoteTotal: %v", err)
		}
		if total != 3 {
			t.Errorf("vote total = %d, want 3", total)
		}
		item, _ := s.GetItem(ctx, "v-1")
		if item.VoteCount != 21 {
			t.Errorf("vote count = %d, want 21", item.VoteCount)
		}

		if err := s.IncrementVotes(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing item: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListItems filters and sorts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		for i, tc := range []struct {
			cat   domain.Category
			score float64
		}{
			{domain.CategoryPolitics, 0.5},
			{domain.CategoryPolitics, 2.0},
			{domain.CategoryScience, 9.0},
			{domain.CategoryPolitics, 1.0},
		} {
			it := testItem(fmt.Sprintf("l-%d", i), fmt.Sprintf("addr-l-%d", i), 1)
			it.Category = tc.cat
			it.Score = tc.score
			it.IngestedAt = base.Add(time.Duration(i) * time.Hour)
			if _, err := s.InsertIfAbsent(ctx, it); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		byScore, err := s.ListItems(ctx, domain.ItemQuery{Category: domain.CategoryPolitics, Sort: domain.SortScore})
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		if got := ids(byScore); fmt.Sprint(got) != "[l-1 l-3 l-0]" {
			t.Errorf("score order = %v", got)
		}

		newest, err := s.ListItems(ctx, domain.ItemQuery{Sort: domain.SortNewest, Limit: 2})
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		if got := ids(newest); fmt.Sprint(got) != "[l-3 l-2]" {
			t.Errorf("newest order = %v", got)
		}

		window, err := s.ListItems(ctx, domain.ItemQuery{
			Since: base.Add(time.Hour),
			Until: base.Add(3 * time.Hour),
			Sort:  domain.SortNewest,
		})
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		if got := ids(window); fmt.Sprint(got) != "[l-2 l-1]" {
			t.Errorf("time window = %v", got)
		}
	})

	t.Run("scores and rescore listing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		for i := 0; i < 3; i++ {
			it := testItem(fmt.Sprintf("r-%d", i), fmt.Sprintf("addr-r-%d", i), 1)
			it.ScoredAt = old.Add(time.Duration(i) * time.Minute)
			if _, err := s.InsertIfAbsent(ctx, it); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		now := old.Add(time.Hour)
		if err := s.UpdateScore(ctx, "r-0", 4.2, now); err != nil {
			t.Fatalf("UpdateScore: %v", err)
		}
		stale, err := s.ListForRescore(ctx, old.Add(30*time.Minute), 10)
		if err != nil {
			t.Fatalf("ListForRescore: %v", err)
		}
		if got := ids(stale); fmt.Sprint(got) != "[r-1 r-2]" {
			t.Errorf("stale = %v", got)
		}
		item, _ := s.GetItem(ctx, "r-0")
		if item.Score != 4.2 || !item.ScoredAt.Equal(now) {
			t.Errorf("score not cached: %v at %v", item.Score, item.ScoredAt)
		}
		if err := s.UpdateScore(ctx, "missing", 1, now); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing item: err = %v", err)
		}
	})

	t.Run("sources keep runtime state across upserts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		src := domain.Source{ID: "feed-1", URL: "https://example.com/rss", Interval: 15 * time.Minute, Category: domain.CategoryWorld}
		if err := s.UpsertSource(ctx, src); err != nil {
			t.Fatalf("UpsertSource: %v", err)
		}

		fetched := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		if err := s.UpdateSourceValidators(ctx, "feed-1", `"e1"`, "Sat, 01 Mar 2025 08:00:00 GMT", &fetched, 0); err != nil {
			t.Fatalf("UpdateSourceValidators: %v", err)
		}
		if err := s.UpdateSourceValidators(ctx, "feed-1", `"e1"`, "Sat, 01 Mar 2025 08:00:00 GMT", nil, 2); err != nil {
			t.Fatalf("UpdateSourceValidators: %v", err)
		}

		src.Interval = 30 * time.Minute
		if err := s.UpsertSource(ctx, src); err != nil {
			t.Fatalf("UpsertSource: %v", err)
		}

		got, err := s.GetSource(ctx, "feed-1")
		if err != nil {
			t.Fatalf("GetSource: %v", err)
		}
		if got.Interval != 30*time.Minute || got.Category != domain.CategoryWorld {
			t.Errorf("config fields not updated: %+v", got)
		}
		if got.ETag != `"e1"` || got.FailureCount != 2 {
			t.Errorf("runtime state lost: %+v", got)
		}
		if got.LastFetchedAt == nil || !got.LastFetchedAt.Equal(fetched) {
			t.Errorf("last fetched = %v, want %v", got.LastFetchedAt, fetched)
		}

		if _, err := s.GetSource(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing source: err = %v", err)
		}
		if err := s.UpdateSourceValidators(ctx, "nope", "", "", nil, 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing source update: err = %v", err)
		}
	})
}

func testItem(id, address string, votes int64) *domain.ContentItem {
	published := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	return &domain.ContentItem{
		ID:             id,
		SourceID:       "src",
		CanonicalURL:   "https://example.com/" + address,
		ContentAddress: address,
		Title:          "Title " + id,
		Body:           "<p>body</p>",
		Category:       domain.CategoryGeneral,
		Tags:           []string{"alpha", "beta"},
		PublishedAt:    &published,
		IngestedAt:     time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		ScoredAt:       time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func ids(items []domain.ContentItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
