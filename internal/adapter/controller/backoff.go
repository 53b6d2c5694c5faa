package controller

import (
	rand "math/rand/v2"
	"time"
)

const backoffMultiplier = 2.0

// nextBackoff returns the delay before the next attempt using full jitter: the first delay
// equals base, later ones are drawn from [base, prev*2) and capped at capDur.
func nextBackoff(prev, base, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if capDur > 0 && capDur < base {
		return capDur
	}
	if prev <= 0 {
		return base
	}

	spread := time.Duration(float64(prev)*backoffMultiplier) - base
	if spread <= 0 {
		spread = base
	}
	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(spread))
	} else {
		jitter = rand.Int64N(int64(spread)) //nolint:gosec // retry jitter
	}

	next := base + time.Duration(jitter)
	if capDur > 0 && next > capDur {
		return capDur
	}
	return next
}
