// ABOUTME: Exponential reconnect delay for the duplex channel.
// ABOUTME: Doubles from a base delay per failed attempt and clamps at a cap.

package duplex

import "time"

// Backoff returns min(base*2^attempt, limit). Negative attempts are treated as zero.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if limit > 0 && d >= limit {
			return limit
		}
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
