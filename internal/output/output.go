// Package output renders a finished run's Statistics snapshot as either the
// fixed-column text table or the structured JSON document spec.md §6
// contracts.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/bpowers/rsb-bench/internal/config"
	"github.com/bpowers/rsb-bench/internal/stats"
)

// Latency is one percentile entry in the JSON schema.
type Latency struct {
	Percent float32 `json:"percent"`
	Micros  uint64  `json:"micros"`
}

// Summary is the JSON output document. Field names are part of the external
// contract (spec.md §6) and must not change.
type Summary struct {
	AvgReqPerSecond   float64 `json:"avg_req_per_second"`
	StdevPerSecond    float64 `json:"stdev_per_second"`
	MaxReqPerSecond   float64 `json:"max_req_per_second"`
	AvgReqUsedTime    uint64  `json:"avg_req_used_time"`
	StdevReqUsedTime  uint64  `json:"stdev_req_used_time"`
	MaxReqUsedTime    uint64  `json:"max_req_used_time"`
	Latencies         []Latency `json:"latencies"`
	Rsp1xx            uint64  `json:"rsp1xx"`
	Rsp2xx            uint64  `json:"rsp2xx"`
	Rsp3xx            uint64  `json:"rsp3xx"`
	Rsp4xx            uint64  `json:"rsp4xx"`
	Rsp5xx            uint64  `json:"rsp5xx"`
	RspOthers         uint64  `json:"rsp_others"`
	Errors            map[string]uint64 `json:"errors"`
	Throughput        float64 `json:"throughput"`
}

func micros(d time.Duration) uint64 {
	return uint64(d.Microseconds())
}

// FromSnapshot converts a post-Summary stats.Snapshot into the JSON
// output schema.
func FromSnapshot(s stats.Snapshot) Summary {
	out := Summary{
		AvgReqPerSecond:  s.AvgRPS,
		StdevPerSecond:   s.StdevRPS,
		MaxReqPerSecond:  s.MaxRPS,
		AvgReqUsedTime:   micros(s.AvgLatency),
		StdevReqUsedTime: micros(s.StdevLatency),
		MaxReqUsedTime:   micros(s.MaxLatency),
		Rsp1xx:           s.Rsp1xx,
		Rsp2xx:           s.Rsp2xx,
		Rsp3xx:           s.Rsp3xx,
		Rsp4xx:           s.Rsp4xx,
		Rsp5xx:           s.Rsp5xx,
		RspOthers:        s.RspOthers,
		Errors:           s.Errors,
		Throughput:       s.Throughput,
	}
	for _, l := range s.Latencies {
		out.Latencies = append(out.Latencies, Latency{Percent: l.Percent, Micros: micros(l.Value)})
	}
	return out
}

// Text renders the fixed-column text table: a Statistics|Avg|Stdev|Max
// table, an optional Latency Distribution section, an HTTP codes block, an
// optional Errors block, and a final Throughput line.
func Text(s stats.Snapshot, w config.Workload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-14s%-14s%-14s%-14s\n", "Statistics", "Avg", "Stdev", "Max")
	fmt.Fprintf(&b, "  %-12s%-14.2f%-14.2f%-14.2f\n", "Reqs/sec", s.AvgRPS, s.StdevRPS, s.MaxRPS)
	fmt.Fprintf(&b, "  %-12s%-14s%-14s%-14s\n", "Latency",
		formatDuration(s.AvgLatency), formatDuration(s.StdevLatency), formatDuration(s.MaxLatency))

	if w.Latencies && len(s.Latencies) > 0 {
		fmt.Fprintf(&b, "  %s\n", "Latency Distribution")
		for _, l := range s.Latencies {
			fmt.Fprintf(&b, "  %8s  %10s\n", fmt.Sprintf("%.0f%%", l.Percent*100), formatDuration(l.Value))
		}
	}

	fmt.Fprintf(&b, "  %s\n", "HTTP codes:")
	fmt.Fprintf(&b, "    1XX - %d, 2XX - %d, 3XX - %d, 4XX - %d, 5XX - %d\n",
		s.Rsp1xx, s.Rsp2xx, s.Rsp3xx, s.Rsp4xx, s.Rsp5xx)
	fmt.Fprintf(&b, "    others - %d\n", s.RspOthers)

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "  %s\n", "Errors:")
		for msg, count := range s.Errors {
			fmt.Fprintf(&b, "    %q:%8d\n", msg, count)
		}
	}

	fmt.Fprintf(&b, "  %-12s%10.2f/s", "Throughput:", s.Throughput)

	return b.String()
}

// formatDuration mimics Rust's "{:.2?}" Debug-duration formatting: a
// human-scaled unit (ns/µs/ms/s) with two fractional digits. Unlike Rust,
// a zero duration renders as "0.00ms" rather than "0.00ns".
func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0.00ms"
	case d < time.Microsecond:
		return fmt.Sprintf("%.2fns", float64(d.Nanoseconds()))
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
