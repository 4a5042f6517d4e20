// Command rsb is an HTTP load-benchmarking tool.
//
// rsb does not raise the process's open-file limit; the number of
// concurrent connections it can hold open is bounded by whatever limit it
// is started with.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bpowers/rsb-bench/internal/config"
	"github.com/bpowers/rsb-bench/internal/engine"
	"github.com/bpowers/rsb-bench/internal/output"
	"github.com/bpowers/rsb-bench/internal/stats"
)

var (
	connections = flag.Int("c", 50, "")
	timeout     = flag.Duration("t", 30*time.Second, "")
	latencies   = flag.Bool("l", false, "")
	percentiles = flag.String("percentiles", "0.5,0.75,0.9,0.99", "")
	method      = flag.String("m", "GET", "")
	noKeepAlive = flag.Bool("a", false, "")
	requests    = flag.Uint64("n", 0, "")
	duration    = flag.Duration("d", 0, "")
	rate        = flag.Int("r", 0, "")
	cert        = flag.String("cert", "", "")
	key         = flag.String("key", "", "")
	insecure    = flag.Bool("k", false, "")
	jsonFile    = flag.String("json-file", "", "")
	jsonBody    = flag.String("json-body", "", "")
	textFile    = flag.String("text-file", "", "")
	textBody    = flag.String("text-body", "", "")
	multipart   = flag.String("mp", "", "")
	multipartFl = flag.String("mp-file", "", "")
	form        = flag.String("form", "", "")
	outFormat   = flag.String("output-format", "TEXT", "")
	h2          = flag.Bool("h2", false, "")
	progress    = flag.Bool("progress", true, "")
	completions = flag.String("completions", "", "")
	verbose     = flag.Bool("v", false, "")
)

var usage = `Usage: rsb [options...] <url>

Options:
  -c             Maximum number of concurrent connections (default 50)
  -t             Socket/request timeout (default 30s)
  -l             Print latency statistics
  -percentiles   Comma-separated latency percentiles (default 0.5,0.75,0.9,0.99)
  -m             Request method: GET, POST, PUT, DELETE, HEAD, PATCH (default GET)
  -a             Disable HTTP keep-alive
  -H             HTTP header "key:value", repeatable
  -n             Number of requests; mutually exclusive with -d
  -d             Duration of test; mutually exclusive with -n
  -r             Rate limit in requests per second
  -cert          Path to the client's TLS certificate
  -key           Path to the client's TLS certificate private key
  -k             Skip TLS certificate verification
  -json-file     File to use as request body, Content-Type: application/json
  -json-body     Request body, Content-Type: application/json
  -text-file     File to use as request body, Content-Type: text/plain
  -text-body     Request body, Content-Type: text/plain
  -mp            Multipart body fields, "k1:v1,k2:v2"
  -mp-file       Multipart body files, "fieldname1:path1,fieldname2:path2"
  -form          Form body fields, Content-Type: application/x-www-form-urlencoded
  -output-format TEXT or JSON (default TEXT)
  -h2            Enable HTTP/2
  -progress      Show a progress bar (default true)
  -completions   Emit a bash completion script and exit
  -v             Verbose (debug-level) logging
`

type headerSlice []string

func (h *headerSlice) String() string { return strings.Join(*h, ",") }

func (h *headerSlice) Set(value string) error {
	*h = append(*h, value)
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
	}

	var headers headerSlice
	flag.Var(&headers, "H", "")
	flag.Parse()

	if *completions != "" {
		emitBashCompletions(os.Stdout)
		return
	}

	if flag.NArg() < 1 {
		usageAndExit("a target url is required")
	}

	w, err := buildWorkload(headers, flag.Arg(0))
	if err != nil {
		usageAndExit(err.Error())
	}

	logger := newLogger(*verbose)

	task, err := engine.New(w, logger, *progress)
	if err != nil {
		errAndExit(fmt.Sprintf("could not start run: %s", err))
	}

	printTip(w)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	snap, err := task.Run(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("one or more workers returned an error")
	}

	result, err := renderResult(snap, w)
	if err != nil {
		errAndExit(fmt.Sprintf("could not render result: %s", err))
	}
	fmt.Println(result)
}

func buildWorkload(headers headerSlice, url string) (config.Workload, error) {
	w := config.Default()
	w.URL = url
	w.Connections = uint16(*connections)
	w.Timeout = *timeout
	w.Method = config.Method(strings.ToUpper(*method))
	w.Headers = headers
	w.DisableKeepAlive = *noKeepAlive
	w.Cert = *cert
	w.Key = *key
	w.Insecure = *insecure
	w.H2 = *h2
	w.JSONBody = *jsonBody
	w.JSONFile = *jsonFile
	w.TextBody = *textBody
	w.TextFile = *textFile
	w.Latencies = *latencies
	w.OutputFormat = config.OutputFormat(strings.ToUpper(*outFormat))

	if *requests > 0 {
		n := *requests
		w.Requests = &n
	}
	if *duration > 0 {
		d := *duration
		w.Duration = &d
	}
	if *rate > 0 {
		r := *rate
		w.Rate = &r
	}
	if *form != "" {
		w.Form = splitCSV(*form)
	}
	if *multipart != "" {
		w.Multipart = splitCSV(*multipart)
	}
	if *multipartFl != "" {
		w.MultipartFile = splitCSV(*multipartFl)
	}

	ps, err := parsePercentiles(*percentiles)
	if err != nil {
		return w, err
	}
	w.Percentiles = ps

	if err := w.Validate(); err != nil {
		return w, err
	}
	return w, nil
}

func parsePercentiles(s string) ([]float32, error) {
	var out []float32
	for _, p := range splitCSV(s) {
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid percentile %q: %w", p, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// printTip echoes the resolved method/url/extent/connections before the run
// starts, so an operator watching the terminal knows what's about to happen.
func printTip(w config.Workload) {
	if w.Requests != nil {
		fmt.Printf("%s %s with %d requests using %d connections\n",
			w.Method, w.URL, *w.Requests, w.Connections)
	} else {
		fmt.Printf("%s %s for %s using %d connections\n",
			w.Method, w.URL, *w.Duration, w.Connections)
	}
}

func renderResult(snap stats.Snapshot, w config.Workload) (string, error) {
	if w.OutputFormat == config.OutputJSON {
		data, err := json.MarshalIndent(output.FromSnapshot(snap), "", "  ")
		if err != nil {
			return "", fmt.Errorf("json.MarshalIndent: %w", err)
		}
		return string(data), nil
	}
	return output.Text(snap, w), nil
}

func errAndExit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func usageAndExit(msg string) {
	if msg != "" {
		fmt.Fprintf(os.Stderr, "%s\n\n", msg)
	}
	flag.Usage()
	os.Exit(1)
}
