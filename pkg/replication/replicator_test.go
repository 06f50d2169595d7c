package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"newsfeed/pkg/db"
	"newsfeed/pkg/domain"
)

// mockSink is a mock implementation of ItemSink for testing
type mockSink struct {
	failOn string
	calls  int32
}

func (m *mockSink) InsertIfAbsent(ctx context.Context, item *domain.ContentItem) (bool, error) {
	atomic.AddInt32(&m.calls, 1)
	if item.ID == m.failOn {
		return false, errors.New("connection reset")
	}
	return true, nil
}

// staticSource is a mock implementation of ItemSource for testing
type staticSource struct {
	items []domain.ContentItem
	err   error
}

func (s staticSource) AllItems(ctx context.Context) ([]domain.ContentItem, error) {
	return s.items, s.err
}

func makeItems(n int) []domain.ContentItem {
	items := make([]domain.ContentItem, n)
	for i := range items {
		items[i] = domain.ContentItem{
			ID:             fmt.Sprintf("item-%03d", i),
			CanonicalURL:   fmt.Sprintf("https://example.com/%d", i),
			ContentAddress: fmt.Sprintf("%064d", i),
			Title:          fmt.Sprintf("Item %d", i),
			Category:       domain.DefaultCategory,
			Tags:           []string{"tag"},
			IngestedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return items
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestNewReplicator_RequiresEnds(t *testing.T) {
	if _, err := NewReplicator(Config{Sink: &mockSink{}}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := NewReplicator(Config{Source: staticSource{}}); err == nil {
		t.Error("expected error without sink")
	}
}

func TestReplicateItems_Idempotent(t *testing.T) {
	source := db.NewMemoryStore()
	for _, it := range makeItems(250) {
		it := it
		if _, err := source.InsertIfAbsent(context.Background(), &it); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	sink := db.NewMemoryStore()

	r, err := NewReplicator(Config{Source: source, Sink: sink, BatchSize: 40, Workers: 3, Logger: quiet()})
	if err != nil {
		t.Fatalf("NewReplicator: %v", err)
	}

	res, err := r.ReplicateItems(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Processed != 250 || res.Inserted != 250 || res.Skipped != 0 {
		t.Errorf("first run = %+v", res)
	}
	if sink.Len() != 250 {
		t.Errorf("sink has %d items", sink.Len())
	}

	res, err = r.ReplicateItems(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Processed != 250 || res.Inserted != 0 || res.Skipped != 250 {
		t.Errorf("second run = %+v", res)
	}
	if sink.Len() != 250 {
		t.Errorf("rerun duplicated items: %d", sink.Len())
	}

	got, err := sink.GetItem(context.Background(), "item-007")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.CanonicalURL != "https://example.com/7" || len(got.Tags) != 1 {
		t.Errorf("replicated item = %+v", got)
	}
}

func TestReplicateItems_SkipsItemsWithoutAddress(t *testing.T) {
	items := makeItems(3)
	items[1].ContentAddress = ""
	sink := &mockSink{}

	r, _ := NewReplicator(Config{Source: staticSource{items: items}, Sink: sink, Logger: quiet()})
	res, err := r.ReplicateItems(context.Background())
	if err != nil {
		t.Fatalf("ReplicateItems: %v", err)
	}
	if res.Inserted != 2 || res.Skipped != 1 || sink.calls != 2 {
		t.Errorf("res = %+v, calls = %d", res, sink.calls)
	}
}

func TestReplicateItems_SinkError(t *testing.T) {
	sink := &mockSink{failOn: "item-005"}
	r, _ := NewReplicator(Config{Source: staticSource{items: makeItems(20)}, Sink: sink, BatchSize: 10, Workers: 1, Logger: quiet()})

	_, err := r.ReplicateItems(context.Background())
	if err == nil {
		t.Fatal("expected sink error")
	}
	if !strings.Contains(err.Error(), "item-005") || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("err = %v", err)
	}
}

func TestReplicateItems_SourceError(t *testing.T) {
	r, _ := NewReplicator(Config{Source: staticSource{err: errors.New("mongo down")}, Sink: &mockSink{}, Logger: quiet()})
	if _, err := r.ReplicateItems(context.Background()); err == nil {
		t.Fatal("expected source error")
	}
}
