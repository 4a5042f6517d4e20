package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bpowers/rsb-bench/internal/config"
	"github.com/bpowers/rsb-bench/internal/stats"
)

func TestFromSnapshotRoundTripsMicrosecondsExactly(t *testing.T) {
	snap := stats.Snapshot{
		AvgLatency: 1234567 * time.Nanosecond,
		Latencies:  []stats.Latency{{Percent: 0.5, Value: 2500 * time.Microsecond}},
		Errors:     map[string]uint64{},
	}

	out := FromSnapshot(snap)
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	var roundTripped Summary
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	if roundTripped.AvgReqUsedTime != out.AvgReqUsedTime {
		t.Fatalf("AvgReqUsedTime round-trip mismatch: %d != %d", roundTripped.AvgReqUsedTime, out.AvgReqUsedTime)
	}
	if len(roundTripped.Latencies) != 1 || roundTripped.Latencies[0].Micros != 2500 {
		t.Fatalf("latency round-trip mismatch: %+v", roundTripped.Latencies)
	}
}

func TestTextOutputIncludesThroughputAndCodes(t *testing.T) {
	snap := stats.Snapshot{
		Rsp2xx:     100,
		Throughput: 42.5,
		Errors:     map[string]uint64{},
	}

	got := Text(snap, config.Default())

	if !strings.Contains(got, "2XX - 100") {
		t.Fatalf("expected HTTP codes line in output:\n%s", got)
	}
	if !strings.Contains(got, "Throughput:") {
		t.Fatalf("expected throughput line in output:\n%s", got)
	}
}

func TestTextOutputOmitsLatencyDistributionWhenDisabled(t *testing.T) {
	snap := stats.Snapshot{
		Latencies: []stats.Latency{{Percent: 0.5, Value: time.Millisecond}},
		Errors:    map[string]uint64{},
	}
	w := config.Default()
	w.Latencies = false

	got := Text(snap, w)
	if strings.Contains(got, "Latency Distribution") {
		t.Fatalf("expected no latency distribution section:\n%s", got)
	}
}
