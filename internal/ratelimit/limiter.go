// Package ratelimit bounds the mean admission rate of a run to a fixed
// number of requests per wall-clock second, with bursts bounded by the
// bucket capacity.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket configured with capacity and refill rate R
// tokens per second. At construction, R tokens are drained so that the
// first second of a run does not see a 2R burst (one full bucket plus one
// second of refill) — see New.
type Limiter struct {
	inner *rate.Limiter
	rps   int
}

// New constructs a Limiter permitting at most rps requests per second, with
// the initial bucket pre-drained.
func New(rps int) *Limiter {
	l := &Limiter{
		inner: rate.NewLimiter(rate.Limit(rps), rps),
		rps:   rps,
	}
	l.drain(rps)
	return l
}

// TryAcquireOne attempts to remove a single token without blocking. It
// reports whether a token was available.
func (l *Limiter) TryAcquireOne() bool {
	return l.inner.AllowN(time.Now(), 1)
}

// drain blocks until n tokens have been removed from the bucket. Used once
// at construction to consume the initial full bucket.
func (l *Limiter) drain(n int) {
	for {
		if l.inner.AllowN(time.Now(), n) {
			return
		}
		time.Sleep(100 * time.Nanosecond)
	}
}
