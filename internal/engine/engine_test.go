package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bpowers/rsb-bench/internal/config"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestRunCountModeExact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := uint64(200)
	w := config.Default()
	w.URL = srv.URL
	w.Connections = 10
	w.Requests = &n

	task, err := New(w, testLogger(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if snap.Total != n {
		t.Fatalf("Total = %d, want %d", snap.Total, n)
	}
	if snap.Rsp2xx != n {
		t.Fatalf("Rsp2xx = %d, want %d", snap.Rsp2xx, n)
	}
	if snap.TotalSuccess != n {
		t.Fatalf("TotalSuccess = %d, want %d", snap.TotalSuccess, n)
	}
	if len(snap.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", snap.Errors)
	}
}

func TestRunAllErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := uint64(50)
	w := config.Default()
	w.URL = srv.URL
	w.Connections = 5
	w.Requests = &n

	task, err := New(w, testLogger(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if snap.Rsp5xx != n {
		t.Fatalf("Rsp5xx = %d, want %d", snap.Rsp5xx, n)
	}
	if snap.TotalSuccess != 0 {
		t.Fatalf("TotalSuccess = %d, want 0 (503 is a response, not an error)", snap.TotalSuccess)
	}
	if snap.AvgLatency == 0 {
		t.Fatalf("expected nonzero avg latency computed over 503 responses")
	}
}

func TestRunUnreachableURL(t *testing.T) {
	n := uint64(20)
	w := config.Default()
	w.URL = "http://127.0.0.1:1"
	w.Connections = 5
	w.Timeout = 2 * time.Second
	w.Requests = &n

	task, err := New(w, testLogger(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if snap.Total != n {
		t.Fatalf("Total = %d, want %d", snap.Total, n)
	}
	if snap.Rsp1xx+snap.Rsp2xx+snap.Rsp3xx+snap.Rsp4xx+snap.Rsp5xx+snap.RspOthers != 0 {
		t.Fatalf("expected all-zero status buckets, got %+v", snap)
	}
	if len(snap.Errors) != 1 {
		t.Fatalf("expected a single error category, got %+v", snap.Errors)
	}
	for _, count := range snap.Errors {
		if count != n {
			t.Fatalf("expected error count %d, got %d", n, count)
		}
	}
}

func TestRunDurationMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := 2 * time.Second
	w := config.Default()
	w.URL = srv.URL
	w.Connections = 5
	w.Duration = &d

	task, err := New(w, testLogger(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	snap, err := task.Run(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if elapsed < d {
		t.Fatalf("elapsed = %v, want >= %v", elapsed, d)
	}
	if snap.Total < 5 {
		t.Fatalf("Total = %d, want >= connections (5)", snap.Total)
	}
}

func TestRunCancellationStopsNewAdmissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := uint64(100000)
	w := config.Default()
	w.URL = srv.URL
	w.Connections = 10
	w.Requests = &n

	task, err := New(w, testLogger(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	snap, err := task.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if snap.Total >= n {
		t.Fatalf("expected cancellation to stop the run well short of %d, got %d", n, snap.Total)
	}
}
