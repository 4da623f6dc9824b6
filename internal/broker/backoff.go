package broker

import "time"

// Backoff returns the reconnect delay for the given attempt: base doubled
// per attempt, capped at ceiling. Attempt 0 returns base.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = base
	}

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}
