package worker

import (
	"testing"
	"time"
)

func TestNextDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		base      time.Duration
		failures  int
		threshold int
		max       time.Duration
		want      time.Duration
	}{
		{"no failures", time.Minute, 0, 3, time.Hour, time.Minute},
		{"at threshold", time.Minute, 3, 3, time.Hour, time.Minute},
		{"one over", time.Minute, 4, 3, time.Hour, 2 * time.Minute},
		{"three over", time.Minute, 6, 3, time.Hour, 8 * time.Minute},
		{"capped", time.Minute, 20, 3, time.Hour, time.Hour},
		{"huge failure count", time.Minute, 1 << 20, 3, 6 * time.Hour, 6 * time.Hour},
		{"zero threshold", 10 * time.Second, 1, 0, time.Hour, 20 * time.Second},
		{"max below base", time.Hour, 10, 0, time.Minute, time.Hour},
		{"zero base", 0, 0, 3, time.Hour, DefaultInterval},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NextDelay(tt.base, tt.failures, tt.threshold, tt.max)
			if got != tt.want {
				t.Errorf("NextDelay(%v, %d, %d, %v) = %v, want %v",
					tt.base, tt.failures, tt.threshold, tt.max, got, tt.want)
			}
		})
	}
}

func TestNextDelay_ResetsAfterSuccess(t *testing.T) {
	t.Parallel()

	backedOff := NextDelay(time.Minute, 5, 3, time.Hour)
	reset := NextDelay(time.Minute, 0, 3, time.Hour)
	if backedOff <= reset || reset != time.Minute {
		t.Errorf("backed off %v, reset %v", backedOff, reset)
	}
}
