package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsfeed/pkg/domain"
)

// MemoryStore is an in-process Store. Uniqueness of content addresses is
// enforced under its mutex, so it is only correct within one process.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]*domain.ContentItem // by ID
	byAddress map[string]string              // content address -> ID
	sources   map[string]domain.Source
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]*domain.ContentItem),
		byAddress: make(map[string]string),
		sources:   make(map[string]domain.Source),
	}
}

func (m *MemoryStore) InsertIfAbsent(ctx context.Context, item *domain.ContentItem) (bool, error) {
	if item == nil || item.ContentAddress == "" {
		return false, fmt.Errorf("insert item: content address is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byAddress[item.ContentAddress]; exists {
		return false, nil
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if _, exists := m.items[item.ID]; exists {
		return false, fmt.Errorf("%w: item id %s reused for address %s", ErrInvariantViolation, item.ID, item.ContentAddress)
	}

	stored := cloneItem(*item)
	m.items[item.ID] = &stored
	m.byAddress[item.ContentAddress] = item.ID
	return true, nil
}

func (m *MemoryStore) GetItem(ctx context.Context, id string) (domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[id]
	if !ok {
		return domain.ContentItem{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return cloneItem(*it), nil
}

// Len returns the number of stored items.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// AllItems returns every item ordered by ingestion time, oldest first.
func (m *MemoryStore) AllItems(ctx context.Context) ([]domain.ContentItem, error) {
	m.mu.RLock()
	out := make([]domain.ContentItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, cloneItem(*it))
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.Before(out[j].IngestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ListItems(ctx context.Context, q domain.ItemQuery) ([]domain.ContentItem, error) {
	m.mu.RLock()
	out := make([]domain.ContentItem, 0, len(m.items))
	for _, it := range m.items {
		if matchesQuery(it, q) {
			out = append(out, cloneItem(*it))
		}
	}
	m.mu.RUnlock()

	sortItems(out, q.Sort)
	if limit := normalizeLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) IncrementVotes(ctx context.Context, itemID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	it.VoteTotal += delta
	it.VoteCount++
	return nil
}

func (m *MemoryStore) GetVoteTotal(ctx context.Context, itemID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[itemID]
	if !ok {
		return 0, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return it.VoteTotal, nil
}

func (m *MemoryStore) UpdateScore(ctx context.Context, itemID string, score float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	it.Score = score
	it.ScoredAt = at.UTC()
	return nil
}

func (m *MemoryStore) ListForRescore(ctx context.Context, before time.Time, limit int) ([]domain.ContentItem, error) {
	m.mu.RLock()
	var out []domain.ContentItem
	for _, it := range m.items {
		if it.ScoredAt.Before(before) {
			out = append(out, cloneItem(*it))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ScoredAt.Before(out[j].ScoredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetSource(ctx context.Context, id string) (domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.sources[id]
	if !ok {
		return domain.Source{}, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return src, nil
}

func (m *MemoryStore) UpsertSource(ctx context.Context, src domain.Source) error {
	if src.ID == "" {
		return fmt.Errorf("upsert source: id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sources[src.ID]
	if !ok {
		m.sources[src.ID] = src
		return nil
	}
	existing.URL = src.URL
	existing.Interval = src.Interval
	existing.Category = src.Category
	m.sources[src.ID] = existing
	return nil
}

func (m *MemoryStore) UpdateSourceValidators(ctx context.Context, id, etag, lastModified string, fetchedAt *time.Time, failureCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	src.ETag = etag
	src.LastModified = lastModified
	src.FailureCount = failureCount
	if fetchedAt != nil {
		t := fetchedAt.UTC()
		src.LastFetchedAt = &t
	}
	m.sources[id] = src
	return nil
}

func matchesQuery(it *domain.ContentItem, q domain.ItemQuery) bool {
	if q.Category != "" && it.Category != q.Category {
		return false
	}
	if !q.Since.IsZero() && it.IngestedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !it.IngestedAt.Before(q.Until) {
		return false
	}
	return true
}

// sortItems orders by cached score (ties: newest first) or by ingestion time.
func sortItems(items []domain.ContentItem, order domain.SortOrder) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if order != domain.SortNewest && a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.IngestedAt.Equal(b.IngestedAt) {
			return a.IngestedAt.After(b.IngestedAt)
		}
		return a.ID < b.ID
	})
}

func cloneItem(it domain.ContentItem) domain.ContentItem {
	if it.Tags != nil {
		it.Tags = append([]string(nil), it.Tags...)
	}
	if it.PublishedAt != nil {
		t := *it.PublishedAt
		it.PublishedAt = &t
	}
	return it
}
