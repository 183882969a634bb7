package domain

import (
	"math"
	"time"
)

// MaxDelta is the exclusive upper bound for a single watch-time increment.
// Longer gaps come from sleep, tab suspension or clock jumps and are dropped.
const MaxDelta = 10 * time.Second

// ValidDelta reports whether seconds may be added to the watch-time total.
func ValidDelta(seconds float64) bool {
	return ValidDeltaWithin(seconds, MaxDelta)
}

// ValidDeltaWithin is ValidDelta with a configurable bound.
func ValidDeltaWithin(seconds float64, maxDelta time.Duration) bool {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return false
	}
	return seconds > 0 && seconds < maxDelta.Seconds()
}
