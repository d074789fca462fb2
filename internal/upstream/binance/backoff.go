package binance

import (
	"math/rand"
	"time"
)

// nextDelay doubles the backoff delay up to the cap.
func nextDelay(current, max time.Duration) time.Duration {
	d := current * 2
	if d > max {
		return max
	}
	return d
}

// withJitter spreads a delay by ±20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}
