package db

import (
	"context"
	"errors"
	"time"

	"newsfeed/pkg/domain"
)

var (
	// ErrNotFound is returned when a source or item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation means the content-address uniqueness guarantee
	// failed. Callers must treat it as fatal.
	ErrInvariantViolation = errors.New("storage invariant violated")
)

const (
	// DefaultListLimit applies when ItemQuery.Limit is zero.
	DefaultListLimit = 50
	// MaxListLimit caps ItemQuery.Limit.
	MaxListLimit = 500
)

// SourceStore persists per-source polling state.
type SourceStore interface {
	GetSource(ctx context.Context, id string) (domain.Source, error)
	// UpsertSource creates the source or updates its configured fields
	// (URL, interval, category) without touching validators or counters.
	UpsertSource(ctx context.Context, src domain.Source) error
	// UpdateSourceValidators records the result of a poll. A nil fetchedAt
	// keeps the previous last-fetched timestamp.
	UpdateSourceValidators(ctx context.Context, id, etag, lastModified string, fetchedAt *time.Time, failureCount int) error
}

// ItemStore holds content items keyed by content address.
type ItemStore interface {
	// InsertIfAbsent atomically inserts item unless an item with the same
	// ContentAddress exists. created is false for a duplicate.
	InsertIfAbsent(ctx context.Context, item *domain.ContentItem) (created bool, err error)
	GetItem(ctx context.Context, id string) (domain.ContentItem, error)
	ListItems(ctx context.Context, q domain.ItemQuery) ([]domain.ContentItem, error)
}

// VoteStore aggregates votes. IncrementVotes must be a single atomic update.
type VoteStore interface {
	IncrementVotes(ctx context.Context, itemID string, delta int64) error
	GetVoteTotal(ctx context.Context, itemID string) (int64, error)
}

// ScoreStore caches ranking scores.
type ScoreStore interface {
	UpdateScore(ctx context.Context, itemID string, score float64, at time.Time) error
	// ListForRescore returns items whose score was computed before the
	// given time, oldest first.
	ListForRescore(ctx context.Context, before time.Time, limit int) ([]domain.ContentItem, error)
}

// Store is the full storage collaborator.
type Store interface {
	SourceStore
	ItemStore
	VoteStore
	ScoreStore
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
