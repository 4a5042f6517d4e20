// Package stats implements the single-consumer statistics aggregator: it
// consumes per-request outcome messages, maintains per-second request
// counters and a raw latency sample vector, and computes summary statistics
// once a run terminates.
package stats

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Latency is one percentile entry in a summary: the mean of the fastest
// Percent-fraction of observed latencies (not the Percent-th order
// statistic — see Statistics.Summary).
type Latency struct {
	Percent float32
	Value   time.Duration
}

// Statistics is the process-local aggregate owned by the Task Coordinator.
// It is exclusively mutated by the consumer goroutine during a run via
// HandleMessage and the per-second sampler; after Summary returns it is
// read-only and may be shared freely.
type Statistics struct {
	rsp1xx     atomic.Uint64
	rsp2xx     atomic.Uint64
	rsp3xx     atomic.Uint64
	rsp4xx     atomic.Uint64
	rsp5xx     atomic.Uint64
	rspOthers  atomic.Uint64
	total      atomic.Uint64
	totalOK    atomic.Uint64
	cumulative atomic.Uint64
	isStopped  atomic.Bool

	mu          sync.Mutex
	errors      map[string]uint64
	reqPerSec   []uint64
	usedTime    []time.Duration
	startedAt   time.Time
	stoppedAt   time.Time
	hasStopped  bool

	// computed once, in Summary
	avgRPS, maxRPS, stdevRPS       float64
	avgLatency, maxLatency, stdev  time.Duration
	throughput                     float64
	latencies                      []Latency
}

// New constructs an empty Statistics, started now.
func New() *Statistics {
	return &Statistics{
		errors:    make(map[string]uint64),
		startedAt: time.Now(),
	}
}

// ResetStartTime re-marks the run's start instant, for callers that do
// nontrivial setup work before the first request is issued.
func (s *Statistics) ResetStartTime() {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
}

// Total returns the number of messages received so far (ok + err).
func (s *Statistics) Total() uint64 {
	return s.total.Load()
}

// classifyStatus increments the bucket counter status falls into.
// Inclusive-low/exclusive-high, per spec: [100,200) 1xx ... [500,512) 5xx,
// everything else "other".
func (s *Statistics) classifyStatus(status int) {
	switch {
	case status >= 100 && status < 200:
		s.rsp1xx.Add(1)
	case status >= 200 && status < 300:
		s.rsp2xx.Add(1)
	case status >= 300 && status < 400:
		s.rsp3xx.Add(1)
	case status >= 400 && status < 500:
		s.rsp4xx.Add(1)
	case status >= 500 && status < 512:
		s.rsp5xx.Add(1)
	default:
		s.rspOthers.Add(1)
	}
}

// HandleMessage consumes one completed-request message and updates the
// running counters. It cannot fail.
func (s *Statistics) HandleMessage(m Message) {
	s.total.Add(1)

	if m.Outcome.IsErr() {
		s.mu.Lock()
		s.errors[m.Outcome.Err]++
		s.mu.Unlock()

		if m.Outcome.ErrStatus != 0 {
			s.classifyStatus(m.Outcome.ErrStatus)
		}
		return
	}

	s.classifyStatus(m.Outcome.Status)
	s.totalOK.Add(1)
	s.cumulative.Add(1)

	s.mu.Lock()
	s.usedTime = append(s.usedTime, m.RspAt.Sub(m.ReqAt))
	s.mu.Unlock()
}

// RunPerSecondSampler ticks every second, appending the current second's
// successful-request count to the sample vector and resetting the counter.
// A time.Ticker's first tick arrives one full period after creation, so no
// tick is skipped: every sample covers one whole second. It returns once
// StopTimer has been called and the subsequent tick has been observed.
func (s *Statistics) RunPerSecondSampler() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		s.mu.Lock()
		s.reqPerSec = append(s.reqPerSec, s.cumulative.Swap(0))
		s.mu.Unlock()

		if s.isStopped.Load() {
			return
		}
	}
}

// StopTimer signals RunPerSecondSampler to exit after its next tick, and
// records the stop instant.
func (s *Statistics) StopTimer() {
	s.isStopped.Store(true)
	s.mu.Lock()
	s.stoppedAt = time.Now()
	s.hasStopped = true
	s.mu.Unlock()
}

func mean(xs []uint64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum uint64
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func popStdev(xs []uint64, mu float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := float64(x) - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// trimPartialSecond drops the last sample, which is almost always
// truncated by run termination, whenever there are more than two samples —
// a deliberate accuracy trade-off.
func trimPartialSecond(xs []uint64) []uint64 {
	if len(xs) > 2 {
		return xs[:len(xs)-1]
	}
	return xs
}

// Summary computes every end-of-run derived statistic exactly once, after
// all workers have joined and the message channel has been drained.
// connections is used to compute the nominal steady-state throughput via
// Little's law; percentiles is the ordered list of percentiles to emit.
func (s *Statistics) Summary(connections uint16, percentiles []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trimmed := trimPartialSecond(s.reqPerSec)
	if len(trimmed) > 0 {
		mx := trimmed[0]
		for _, x := range trimmed[1:] {
			if x > mx {
				mx = x
			}
		}
		s.maxRPS = float64(mx)
		mu := mean(trimmed)
		s.avgRPS = mu
		s.stdevRPS = popStdev(trimmed, mu)
	}

	sort.Slice(s.usedTime, func(i, j int) bool { return s.usedTime[i] < s.usedTime[j] })

	if n := len(s.usedTime); n > 0 {
		var sumNanos int64
		for _, d := range s.usedTime {
			sumNanos += d.Nanoseconds()
		}
		avgNanos := sumNanos / int64(n)
		s.avgLatency = time.Duration(avgNanos)
		s.maxLatency = s.usedTime[n-1]

		var sumSq float64
		for _, d := range s.usedTime {
			diff := float64(d.Nanoseconds() - avgNanos)
			sumSq += diff * diff
		}
		s.stdev = time.Duration(math.Sqrt(sumSq / float64(n)))

		if s.avgLatency > 0 {
			s.throughput = float64(connections) / s.avgLatency.Seconds()
		}

		for _, p := range percentiles {
			k := int(float32(n) * p)
			if k <= 0 || k > n {
				continue
			}
			var sum time.Duration
			for _, d := range s.usedTime[:k] {
				sum += d
			}
			s.latencies = append(s.latencies, Latency{Percent: p, Value: sum / time.Duration(k)})
		}
	}

	// no longer needed and may be large
	s.usedTime = nil
}

// Snapshot is a read-only copy of every field a renderer needs, taken after
// Summary has run.
type Snapshot struct {
	Rsp1xx, Rsp2xx, Rsp3xx, Rsp4xx, Rsp5xx, RspOthers uint64
	Errors                                            map[string]uint64
	Total, TotalSuccess                               uint64
	AvgRPS, MaxRPS, StdevRPS                           float64
	AvgLatency, MaxLatency, StdevLatency               time.Duration
	Throughput                                         float64
	Latencies                                          []Latency
	StartedAt, StoppedAt                               time.Time
}

// Snapshot returns a copy of the current (post-Summary, typically) state.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make(map[string]uint64, len(s.errors))
	for k, v := range s.errors {
		errs[k] = v
	}
	lat := make([]Latency, len(s.latencies))
	copy(lat, s.latencies)

	return Snapshot{
		Rsp1xx:        s.rsp1xx.Load(),
		Rsp2xx:        s.rsp2xx.Load(),
		Rsp3xx:        s.rsp3xx.Load(),
		Rsp4xx:        s.rsp4xx.Load(),
		Rsp5xx:        s.rsp5xx.Load(),
		RspOthers:     s.rspOthers.Load(),
		Errors:        errs,
		Total:         s.total.Load(),
		TotalSuccess:  s.totalOK.Load(),
		AvgRPS:        s.avgRPS,
		MaxRPS:        s.maxRPS,
		StdevRPS:      s.stdevRPS,
		AvgLatency:    s.avgLatency,
		MaxLatency:    s.maxLatency,
		StdevLatency:  s.stdev,
		Throughput:    s.throughput,
		Latencies:     lat,
		StartedAt:     s.startedAt,
		StoppedAt:     s.stoppedAt,
	}
}
