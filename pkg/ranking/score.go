// Package ranking computes time-decayed popularity scores and keeps the
// cached score on content items current.
package ranking

import (
	"math"
	"time"

	"newsfeed/pkg/domain"
)

// DefaultGravity is the decay exponent used when none (or an invalid one) is configured.
const DefaultGravity = 1.8

// ageOffsetHours keeps the denominator at or above 2^gravity.
const ageOffsetHours = 2.0

// Score returns voteTotal / (ageHours + 2)^gravity.
//
// A nil or future publishedAt counts as age zero. Negative totals give
// negative scores. gravity must be > 1; anything else (including NaN)
// falls back to DefaultGravity.
func Score(voteTotal int64, publishedAt *time.Time, now time.Time, gravity float64) float64 {
	if !(gravity > 1) || math.IsInf(gravity, 0) {
		gravity = DefaultGravity
	}

	age := 0.0
	if publishedAt != nil {
		if h := now.Sub(*publishedAt).Hours(); h > 0 {
			age = h
		}
	}
	return float64(voteTotal) / math.Pow(age+ageOffsetHours, gravity)
}

// Ranker binds a gravity and a clock.
type Ranker struct {
	Gravity float64
	Now     func() time.Time
}

// NewRanker creates a ranker using the wall clock.
func NewRanker(gravity float64) Ranker {
	return Ranker{Gravity: gravity, Now: time.Now}
}

func (r Ranker) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Score scores an item as of now and returns the time it used.
func (r Ranker) Score(voteTotal int64, publishedAt *time.Time) (float64, time.Time) {
	now := r.now()
	return Score(voteTotal, publishedAt, now, r.Gravity), now
}

// Apply sets item.Score and item.ScoredAt.
func (r Ranker) Apply(item *domain.ContentItem) {
	item.Score, item.ScoredAt = r.Score(item.VoteTotal, item.PublishedAt)
	item.ScoredAt = item.ScoredAt.UTC()
}
