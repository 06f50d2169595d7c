package worker

import "time"

// NextDelay returns how long to wait before the next poll of a source that
// has failed `failures` times in a row. Up to threshold failures the base
// interval is kept; after that it doubles per extra failure, capped at max.
func NextDelay(base time.Duration, failures, threshold int, max time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultInterval
	}
	if max < base {
		max = base
	}
	if failures <= threshold {
		return base
	}

	d := base
	for i := 0; i < failures-threshold; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	return d
}
