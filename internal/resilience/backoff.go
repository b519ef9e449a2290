package resilience

import (
	"math/rand/v2"
	"time"
)

const maxBackoff = 5 * time.Second

// Backoff returns base doubled for every attempt after the first, capped at five seconds.
// jitterPct spreads the result uniformly by that fraction in both directions.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	d = min(d, maxBackoff)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
