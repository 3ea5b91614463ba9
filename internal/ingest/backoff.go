package ingest

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential backoff with full jitter, capped at
// maxRetries attempts (spec.md §4.2). attempt is 1-indexed (the first
// retry after an initial failure).
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultBackoff matches the teacher's own retry posture (500ms base,
// 5s ceiling) generalized to a configurable retry count.
func DefaultBackoff(maxRetries int) Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 5 * time.Second, MaxRetries: maxRetries}
}

// Next returns the delay before attempt, and whether the caller has
// exhausted its retry budget.
func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if attempt > b.MaxRetries {
		return 0, false
	}
	exp := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if exp > float64(b.Max) {
		exp = float64(b.Max)
	}
	jittered := rand.Float64() * exp
	return time.Duration(jittered), true
}
