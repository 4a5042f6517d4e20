// Package dispatch arbitrates whether a worker may issue its next request,
// against either a fixed request count or a wall-clock duration.
package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/bpowers/rsb-bench/internal/ratelimit"
)

// Dispatcher is the admission authority a worker pool consults before every
// request. Both variants share the same admission algorithm; only the
// "are we out of work" test and the progress formula differ.
type Dispatcher interface {
	// IsTerminal reports whether the run is canceled or done.
	IsTerminal() bool

	// Progress returns a value in [0,1] describing how much of the
	// workload has been consumed.
	Progress() float64

	// TryApplyJob admits the calling worker for one more request. A
	// false return means the worker should exit.
	TryApplyJob() bool

	// CompleteJob reports that an admitted request has finished.
	CompleteJob()

	// Cancel requests that the run stop accepting new admissions.
	// Idempotent.
	Cancel()
}

// applyToken runs the limiter-gated portion of admission common to both
// dispatcher variants: if a limiter is configured, back off on denial while
// re-checking for termination, so a canceled/finished run never blocks
// forever waiting on a token.
func applyToken(d Dispatcher, limiter *ratelimit.Limiter) bool {
	if d.IsTerminal() {
		return false
	}

	if limiter != nil {
		for {
			if limiter.TryAcquireOne() {
				break
			}
			if d.IsTerminal() {
				return false
			}
			time.Sleep(5 * time.Microsecond)
		}
	}

	return !d.IsTerminal()
}

func newLimiter(rate *int) *ratelimit.Limiter {
	if rate == nil {
		return nil
	}
	l := ratelimit.New(*rate)
	return l
}

// CountDispatcher admits exactly Total requests across all callers, no
// matter how many workers race for admission.
type CountDispatcher struct {
	total     uint64
	applied   atomic.Uint64
	completed atomic.Uint64
	canceled  atomic.Bool
	done      atomic.Bool
	limiter   *ratelimit.Limiter
}

// NewCountDispatcher constructs a Dispatcher that admits exactly total
// requests. rate, if non-nil, bounds the admission rate to *rate requests
// per second.
func NewCountDispatcher(total uint64, rate *int) *CountDispatcher {
	return &CountDispatcher{
		total:   total,
		limiter: newLimiter(rate),
	}
}

func (d *CountDispatcher) IsTerminal() bool {
	return d.done.Load() || d.canceled.Load()
}

func (d *CountDispatcher) Progress() float64 {
	if d.done.Load() {
		return 1.0
	}
	return float64(d.completed.Load()) / float64(d.total)
}

func (d *CountDispatcher) TryApplyJob() bool {
	if !applyToken(d, d.limiter) {
		return false
	}

	// fetch_add is the linearization point: exactly total admissions
	// succeed even under contention, because only the call whose
	// *previous* value was below total wins.
	previous := d.applied.Add(1) - 1
	return previous < d.total
}

func (d *CountDispatcher) CompleteJob() {
	completed := d.completed.Add(1)
	if completed >= d.total {
		d.done.Store(true)
	}
}

func (d *CountDispatcher) Cancel() {
	d.canceled.Store(true)
}

// Applied returns the number of admissions granted so far.
func (d *CountDispatcher) Applied() uint64 {
	return d.applied.Load()
}

// DurationDispatcher admits requests until Duration has elapsed since
// construction.
type DurationDispatcher struct {
	duration   time.Duration
	startedAt  time.Time
	issued     atomic.Uint64
	canceled   atomic.Bool
	canceledAt atomic.Pointer[time.Time]
	done       atomic.Bool
	limiter    *ratelimit.Limiter
}

// NewDurationDispatcher constructs a Dispatcher that admits requests for
// duration wall-clock time. rate, if non-nil, bounds the admission rate to
// *rate requests per second.
func NewDurationDispatcher(duration time.Duration, rate *int) *DurationDispatcher {
	return &DurationDispatcher{
		duration:  duration,
		startedAt: time.Now(),
		limiter:   newLimiter(rate),
	}
}

func (d *DurationDispatcher) IsTerminal() bool {
	return d.done.Load() || d.canceled.Load()
}

func (d *DurationDispatcher) Progress() float64 {
	if d.done.Load() {
		return 1.0
	}

	var elapsed time.Duration
	if d.canceled.Load() {
		if at := d.canceledAt.Load(); at != nil {
			elapsed = at.Sub(d.startedAt)
		}
	} else {
		elapsed = time.Since(d.startedAt)
	}

	p := elapsed.Seconds() / d.duration.Seconds()
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func (d *DurationDispatcher) TryApplyJob() bool {
	if !applyToken(d, d.limiter) {
		return false
	}

	if time.Since(d.startedAt) >= d.duration {
		return false
	}

	d.issued.Add(1)
	return true
}

func (d *DurationDispatcher) CompleteJob() {
	if time.Since(d.startedAt) >= d.duration {
		d.done.Store(true)
	}
}

func (d *DurationDispatcher) Cancel() {
	if d.canceled.CompareAndSwap(false, true) {
		now := time.Now()
		d.canceledAt.Store(&now)
	}
}

// Issued returns the number of admissions granted so far. Unlike
// CountDispatcher, nothing in the admission algorithm consults it — all
// gating here is time-based — but it is a useful debugging signal, so it is
// exposed rather than removed.
func (d *DurationDispatcher) Issued() uint64 {
	return d.issued.Load()
}

var (
	_ Dispatcher = (*CountDispatcher)(nil)
	_ Dispatcher = (*DurationDispatcher)(nil)
)
