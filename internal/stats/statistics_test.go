package stats

import (
	"testing"
	"time"
)

func TestHandleMessageStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		bucket string
	}{
		{100, "1xx"}, {199, "1xx"},
		{200, "2xx"}, {299, "2xx"},
		{300, "3xx"}, {399, "3xx"},
		{400, "4xx"}, {499, "4xx"},
		{500, "5xx"}, {511, "5xx"},
		{599, "other"},
	}

	for _, c := range cases {
		s := New()
		now := time.Now()
		s.HandleMessage(Message{ReqAt: now, RspAt: now, Outcome: Outcome{Status: c.status}})
		snap := s.Snapshot()

		got := map[string]uint64{
			"1xx":   snap.Rsp1xx,
			"2xx":   snap.Rsp2xx,
			"3xx":   snap.Rsp3xx,
			"4xx":   snap.Rsp4xx,
			"5xx":   snap.Rsp5xx,
			"other": snap.RspOthers,
		}
		if got[c.bucket] != 1 {
			t.Fatalf("status %d: expected bucket %s = 1, got %+v", c.status, c.bucket, got)
		}
	}
}

func TestHandleMessageErrorDoesNotAddLatency(t *testing.T) {
	s := New()
	now := time.Now()
	s.HandleMessage(Message{ReqAt: now, RspAt: now.Add(time.Second), Outcome: Outcome{Err: "connection refused"}})

	s.Summary(1, nil)
	snap := s.Snapshot()

	if snap.Total != 1 {
		t.Fatalf("Total = %d, want 1", snap.Total)
	}
	if snap.TotalSuccess != 0 {
		t.Fatalf("TotalSuccess = %d, want 0", snap.TotalSuccess)
	}
	if snap.AvgLatency != 0 {
		t.Fatalf("AvgLatency = %v, want 0", snap.AvgLatency)
	}
	if snap.Errors["connection refused"] != 1 {
		t.Fatalf("expected error histogram to record connection refused once, got %+v", snap.Errors)
	}
}

func TestSummaryStdevRPS(t *testing.T) {
	cases := []struct {
		samples []uint64
		want    float64
	}{
		{[]uint64{10, 10, 10, 10}, 0},
		{[]uint64{0, 20}, 10},
	}

	for _, c := range cases {
		s := New()
		s.reqPerSec = append(s.reqPerSec, c.samples...)
		s.Summary(1, nil)
		snap := s.Snapshot()
		if snap.StdevRPS != c.want {
			t.Fatalf("samples %v: StdevRPS = %v, want %v", c.samples, snap.StdevRPS, c.want)
		}
	}
}

func TestSummaryTrimsPartialFinalSecond(t *testing.T) {
	s := New()
	s.reqPerSec = []uint64{100, 100, 100, 1} // last is a partial second
	s.Summary(1, nil)
	snap := s.Snapshot()

	if snap.MaxRPS != 100 {
		t.Fatalf("MaxRPS = %v, want 100 (partial final second should be trimmed)", snap.MaxRPS)
	}
	if snap.AvgRPS != 100 {
		t.Fatalf("AvgRPS = %v, want 100", snap.AvgRPS)
	}
}

func TestSummaryDoesNotTrimWithTwoOrFewerSamples(t *testing.T) {
	s := New()
	s.reqPerSec = []uint64{10, 20}
	s.Summary(1, nil)
	snap := s.Snapshot()

	if snap.AvgRPS != 15 {
		t.Fatalf("AvgRPS = %v, want 15 (no trimming with <=2 samples)", snap.AvgRPS)
	}
}

func TestSummaryPercentileIsMeanOfLowestFraction(t *testing.T) {
	s := New()
	now := time.Now()
	durations := []time.Duration{
		1 * time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond,
		4 * time.Millisecond, 5 * time.Millisecond, 6 * time.Millisecond,
		7 * time.Millisecond, 8 * time.Millisecond, 9 * time.Millisecond,
		10 * time.Millisecond,
	}
	for _, d := range durations {
		s.HandleMessage(Message{ReqAt: now, RspAt: now.Add(d), Outcome: Outcome{Status: 200}})
	}

	s.Summary(1, []float32{0.5})
	snap := s.Snapshot()

	if len(snap.Latencies) != 1 {
		t.Fatalf("expected one latency entry, got %d", len(snap.Latencies))
	}
	// k = floor(10 * 0.5) = 5, mean of the 5 fastest (1..5ms) = 3ms
	want := 3 * time.Millisecond
	if snap.Latencies[0].Value != want {
		t.Fatalf("p50 = %v, want %v", snap.Latencies[0].Value, want)
	}
}

func TestSummaryEmptyInputsAreNoOps(t *testing.T) {
	s := New()
	s.Summary(10, []float32{0.5, 0.9})
	snap := s.Snapshot()

	if snap.AvgRPS != 0 || snap.MaxRPS != 0 || snap.StdevRPS != 0 {
		t.Fatalf("expected zero rps stats on empty input, got %+v", snap)
	}
	if snap.AvgLatency != 0 || snap.MaxLatency != 0 || snap.Throughput != 0 {
		t.Fatalf("expected zero latency stats on empty input, got %+v", snap)
	}
	if len(snap.Latencies) != 0 {
		t.Fatalf("expected no latencies on empty input, got %+v", snap.Latencies)
	}
}

func TestPerSecondSamplerStopsAfterStopTimer(t *testing.T) {
	s := New()
	done := make(chan struct{})
	go func() {
		s.RunPerSecondSampler()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	s.StopTimer()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("sampler did not stop after StopTimer")
	}
}
