// Package engine wires the rate limiter, dispatcher, worker pool and
// statistics aggregator together: the Task Coordinator of spec.md §4.5.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/hashicorp/go-multierror"
	"github.com/paulbellamy/ratecounter"
	"github.com/rs/zerolog"

	"github.com/bpowers/rsb-bench/internal/config"
	"github.com/bpowers/rsb-bench/internal/dispatch"
	"github.com/bpowers/rsb-bench/internal/httpx"
	"github.com/bpowers/rsb-bench/internal/stats"
)

// outcomeChanCapacity bounds the producer-consumer pipeline between workers
// and the aggregator. Workers block on a full channel; this is intentional
// backpressure, not a drop policy.
const outcomeChanCapacity = 500

// Task coordinates one end-to-end benchmarking run: it owns the HTTP
// client, the dispatcher, the statistics aggregator, and the lifecycle of
// the worker pool and its supporting watchers.
type Task struct {
	workload   config.Workload
	client     *http.Client
	dispatcher dispatch.Dispatcher
	statistics *stats.Statistics
	logger     zerolog.Logger

	// bar is the progress bar; nil disables it entirely.
	bar *pb.ProgressBar

	canceled    atomic.Bool
	workersDone atomic.Bool

	// recentRate tracks completed requests over a short trailing window, for the
	// progress bar's live rate readout — distinct from Statistics'
	// once-a-second sample vector, which only finalizes at whole-second
	// boundaries.
	recentRate *ratecounter.RateCounter
}

// New constructs a Task from a validated workload. showProgress enables the
// progress-bar watcher.
func New(w config.Workload, logger zerolog.Logger, showProgress bool) (*Task, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload: %w", err)
	}

	client, err := httpx.NewClient(&w)
	if err != nil {
		return nil, fmt.Errorf("httpx.NewClient: %w", err)
	}

	t := &Task{
		workload:   w,
		client:     client,
		dispatcher: newDispatcher(w),
		statistics: stats.New(),
		logger:     logger,
		recentRate: ratecounter.NewRateCounter(2 * time.Second),
	}

	if showProgress {
		t.bar = newProgressBar(w)
	}

	return t, nil
}

func newDispatcher(w config.Workload) dispatch.Dispatcher {
	if w.Requests != nil {
		return dispatch.NewCountDispatcher(*w.Requests, w.Rate)
	}
	return dispatch.NewDurationDispatcher(*w.Duration, w.Rate)
}

func newProgressBar(w config.Workload) *pb.ProgressBar {
	var bar *pb.ProgressBar
	if w.Requests != nil {
		bar = pb.New64(int64(*w.Requests))
	} else {
		bar = pb.New64(int64(w.Duration.Seconds()))
	}
	bar.ShowTimeLeft = true
	bar.ShowSpeed = true
	return bar
}

// Cancel requests that the run stop admitting new requests. In-flight
// requests still run to their natural completion. Idempotent.
func (t *Task) Cancel() {
	t.canceled.Store(true)
	t.dispatcher.Cancel()
}

// Run executes the full lifecycle: spawns the per-second sampler, the
// worker pool, the message consumer, the progress watcher and an interrupt
// watcher bound to ctx, then blocks until the workers finish and the
// aggregator has produced its summary.
//
// Canceling ctx (for example via signal.NotifyContext) plays the role of
// spec.md's interrupt watcher: it requests cancellation cooperatively,
// in-flight requests still complete, and Run still returns a valid summary.
func (t *Task) Run(ctx context.Context) (stats.Snapshot, error) {
	t.statistics.ResetStartTime()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go t.interruptWatcher(ctx, watchCtx)

	messages := make(chan stats.Message, outcomeChanCapacity)

	var samplerWG sync.WaitGroup
	samplerWG.Add(1)
	go func() {
		defer samplerWG.Done()
		t.statistics.RunPerSecondSampler()
	}()

	var progressWG sync.WaitGroup
	if t.bar != nil {
		t.bar.Start()
		progressWG.Add(1)
		go func() {
			defer progressWG.Done()
			t.runProgressWatcher()
		}()
	}

	var workersWG sync.WaitGroup
	var workerErrs error
	var workerErrsMu sync.Mutex
	workersWG.Add(int(t.workload.Connections))
	for i := 0; i < int(t.workload.Connections); i++ {
		go func() {
			defer workersWG.Done()
			if err := t.worker(messages); err != nil {
				workerErrsMu.Lock()
				workerErrs = multierror.Append(workerErrs, err)
				workerErrsMu.Unlock()
			}
		}()
	}

	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		for m := range messages {
			t.statistics.HandleMessage(m)
		}
	}()

	workersWG.Wait()
	t.workersDone.Store(true)
	close(messages)

	t.statistics.StopTimer()

	consumerWG.Wait()
	samplerWG.Wait()
	progressWG.Wait()
	t.finishProgressBar()

	t.statistics.Summary(t.workload.Connections, t.workload.Percentiles)

	return t.statistics.Snapshot(), workerErrs
}

// interruptWatcher cancels the dispatcher when ctx is done, and exits when
// watchCtx is done (Run has already finished draining). Remaining
// loop-armed against a second signal is free: a closed Done channel always
// selects immediately, so redundant cancellation is idempotent by
// construction.
func (t *Task) interruptWatcher(ctx, watchCtx context.Context) {
	select {
	case <-ctx.Done():
		t.logger.Info().Msg("interrupt received, canceling run")
		t.Cancel()
	case <-watchCtx.Done():
	}
}

// worker repeatedly requests admission, builds and issues one request, and
// posts its outcome, until the dispatcher refuses further admission.
func (t *Task) worker(out chan<- stats.Message) error {
	for t.dispatcher.TryApplyJob() {
		req, err := httpx.BuildRequest(context.Background(), &t.workload)
		if err != nil {
			t.dispatcher.CompleteJob()
			return fmt.Errorf("BuildRequest: %w", err)
		}

		reqAt := time.Now()
		resp, err := t.client.Do(req)
		t.dispatcher.CompleteJob()
		rspAt := time.Now()

		t.recentRate.Incr(1)

		out <- stats.Message{
			ReqAt:   reqAt,
			RspAt:   rspAt,
			Outcome: outcomeFor(resp, err),
		}
	}
	return nil
}

func outcomeFor(resp *http.Response, err error) stats.Outcome {
	if err != nil {
		// key the histogram on the underlying cause, not the *url.Error
		// wrapper that prefixes the method and URL.
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Err != nil {
			err = uerr.Err
		}
		return stats.Outcome{Err: err.Error()}
	}
	defer resp.Body.Close()
	return stats.Outcome{Status: resp.StatusCode}
}

func (t *Task) runProgressWatcher() {
	if t.workload.Requests != nil {
		t.runCountProgressWatcher()
	} else {
		t.runDurationProgressWatcher()
	}
}

func (t *Task) runCountProgressWatcher() {
	total := *t.workload.Requests
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		current := t.statistics.Total()
		if current > total {
			current = total
		}
		t.bar.Set64(int64(current))
		t.bar.Postfix(t.liveRateSuffix())

		if t.workersDone.Load() {
			return
		}
		<-ticker.C
	}
}

// liveRateSuffix reports the trailing completed-request rate over the last couple
// of seconds, a faster-moving signal than Statistics' once-a-second sample
// vector (which only finalizes at whole-second boundaries).
func (t *Task) liveRateSuffix() string {
	return fmt.Sprintf(" (%.0f/s)", float64(t.recentRate.Rate())/2)
}

func (t *Task) runDurationProgressWatcher() {
	total := uint64(t.workload.Duration.Seconds())
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var current uint64
	for {
		if current > total {
			current = total
		}
		t.bar.Set64(int64(current))
		t.bar.Postfix(t.liveRateSuffix())

		if t.workersDone.Load() {
			return
		}
		<-ticker.C
		current++
	}
}

func (t *Task) finishProgressBar() {
	if t.bar == nil {
		return
	}
	if t.canceled.Load() {
		t.bar.FinishPrint("(canceled)")
		return
	}
	t.bar.Finish()
}

// Snapshot returns the aggregator's current state without waiting for the
// run to finish; useful for external progress reporting beyond the bar.
func (t *Task) Snapshot() stats.Snapshot {
	return t.statistics.Snapshot()
}
