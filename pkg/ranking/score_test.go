package ranking

import (
	"math"
	"testing"
	"time"

	"newsfeed/pkg/domain"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func hoursAgo(h float64) *time.Time {
	t := now.Add(-time.Duration(h * float64(time.Hour)))
	return &t
}

func TestScore_FreshUnvotedItem(t *testing.T) {
	t.Parallel()

	got := Score(0, &now, now, DefaultGravity)
	if math.IsNaN(got) || math.IsInf(got, 0) || got < 0 {
		t.Fatalf("Score(0, now, now) = %v, want finite and non-negative", got)
	}
}

func TestScore_Formula(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		votes     int64
		published *time.Time
		gravity   float64
		want      float64
	}{
		{"two hours old", 10, hoursAgo(2), 2, 10.0 / 16.0},
		{"brand new hits the floor", 8, &now, 3, 1},
		{"nil published counts as new", 4, nil, 2, 1},
		{"future published counts as new", 4, hoursAgo(-5), 2, 1},
		{"negative votes stay negative", -4, nil, 2, -1},
		{"gravity at 1 falls back", 1, nil, 1, 1 / math.Pow(2, DefaultGravity)},
		{"NaN gravity falls back", 1, nil, math.NaN(), 1 / math.Pow(2, DefaultGravity)},
		{"infinite gravity falls back", 1, nil, math.Inf(1), 1 / math.Pow(2, DefaultGravity)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.votes, tt.published, now, tt.gravity)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_DecreasesWithAge(t *testing.T) {
	t.Parallel()

	for _, gravity := range []float64{1.2, DefaultGravity, 2.5} {
		prev := math.Inf(1)
		for h := 0.0; h <= 240; h += 0.5 {
			s := Score(25, hoursAgo(h), now, gravity)
			if !(s < prev) {
				t.Fatalf("gravity %v: score at %vh (%v) not below previous (%v)", gravity, h, s, prev)
			}
			prev = s
		}
	}
}

func TestRanker_Apply(t *testing.T) {
	r := Ranker{Gravity: 2, Now: func() time.Time { return now }}
	item := &domain.ContentItem{VoteTotal: 10, PublishedAt: hoursAgo(2)}

	r.Apply(item)

	if item.Score != 10.0/16.0 {
		t.Errorf("Score = %v", item.Score)
	}
	if !item.ScoredAt.Equal(now) {
		t.Errorf("ScoredAt = %v", item.ScoredAt)
	}
}
