package ranking

import (
	"context"
	"fmt"
	"time"

	"newsfeed/pkg/domain"
)

// Store is what the vote service and refresher need from storage.
type Store interface {
	IncrementVotes(ctx context.Context, itemID string, delta int64) error
	GetVoteTotal(ctx context.Context, itemID string) (int64, error)
	GetItem(ctx context.Context, id string) (domain.ContentItem, error)
	UpdateScore(ctx context.Context, itemID string, score float64, at time.Time) error
	ListForRescore(ctx context.Context, before time.Time, limit int) ([]domain.ContentItem, error)
}

// Service applies votes and keeps the cached score in step.
type Service struct {
	store  Store
	ranker Ranker
}

// NewService creates a vote service.
func NewService(store Store, ranker Ranker) *Service {
	return &Service{store: store, ranker: ranker}
}

// Vote adds delta to the item's vote total atomically in storage, then
// recomputes and caches its score. It returns the new total and score.
//
// Two concurrent votes may write their scores out of order; the periodic
// refresh corrects that.
func (s *Service) Vote(ctx context.Context, itemID string, delta int64) (int64, float64, error) {
	if err := s.store.IncrementVotes(ctx, itemID, delta); err != nil {
		return 0, 0, fmt.Errorf("vote on %s: %w", itemID, err)
	}
	score, err := s.Rescore(ctx, itemID)
	if err != nil {
		return 0, 0, err
	}
	total, err := s.store.GetVoteTotal(ctx, itemID)
	if err != nil {
		return 0, 0, fmt.Errorf("read vote total %s: %w", itemID, err)
	}
	return total, score, nil
}

// Rescore recomputes one item's score from its stored vote total.
func (s *Service) Rescore(ctx context.Context, itemID string) (float64, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("load %s for scoring: %w", itemID, err)
	}
	score, at := s.ranker.Score(item.VoteTotal, item.PublishedAt)
	if err := s.store.UpdateScore(ctx, itemID, score, at); err != nil {
		return 0, fmt.Errorf("cache score %s: %w", itemID, err)
	}
	return score, nil
}
