// Package config defines the operator-facing workload configuration
// surface: everything spec.md enumerates under "operator-facing workload
// configuration", plus its validation rules.
package config

import (
	"fmt"
	"time"
)

// Method is one of the six HTTP methods the tool supports.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodHead   Method = "HEAD"
	MethodPatch  Method = "PATCH"
)

func (m Method) valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodHead, MethodPatch:
		return true
	default:
		return false
	}
}

// OutputFormat selects the shape of the final result rendering.
type OutputFormat string

const (
	OutputText OutputFormat = "TEXT"
	OutputJSON OutputFormat = "JSON"
)

// Workload is the full set of operator-facing options for one run. Exactly
// one of Requests/Duration must be set (XOR); Cert/Key are both-or-neither;
// the body fields (JSONBody/JSONFile, TextBody/TextFile, Form,
// Multipart/MultipartFile) are mutually exclusive groups, enforced by
// Validate.
type Workload struct {
	Connections uint16
	Timeout     time.Duration
	Method      Method
	Headers     []string

	DisableKeepAlive bool

	// exactly one of Requests/Duration is non-nil after Validate.
	Requests *uint64
	Duration *time.Duration

	// Rate is the target admissions per second; nil means unlimited.
	Rate *int

	Cert, Key string
	Insecure  bool

	H2 bool

	JSONBody, JSONFile string
	TextBody, TextFile string
	Form               []string
	Multipart          []string
	MultipartFile      []string

	Percentiles []float32

	OutputFormat OutputFormat
	Latencies    bool

	URL string
}

// Default returns a Workload populated with spec.md's defaults. Callers
// overlay flag-parsed values on top of this.
func Default() Workload {
	return Workload{
		Connections:  50,
		Timeout:      30 * time.Second,
		Method:       MethodGet,
		Percentiles:  []float32{0.5, 0.75, 0.9, 0.99},
		OutputFormat: OutputText,
	}
}

// Validate checks the mutual-exclusion and range invariants spec.md §6
// requires, returning the first violation found.
func (w *Workload) Validate() error {
	if !w.Method.valid() {
		return fmt.Errorf("invalid method %q", w.Method)
	}

	if (w.Requests == nil) == (w.Duration == nil) {
		return fmt.Errorf("exactly one of -n or -d must be set")
	}

	if (w.Cert == "") != (w.Key == "") {
		return fmt.Errorf("-cert and -key must both be set or both be empty")
	}

	bodyKinds := 0
	if w.JSONBody != "" || w.JSONFile != "" {
		bodyKinds++
	}
	if w.TextBody != "" || w.TextFile != "" {
		bodyKinds++
	}
	if len(w.Form) > 0 {
		bodyKinds++
	}
	if len(w.Multipart) > 0 || len(w.MultipartFile) > 0 {
		bodyKinds++
	}
	if bodyKinds > 1 {
		return fmt.Errorf("at most one body kind (json, text, form, multipart) may be set")
	}

	if w.JSONBody != "" && w.JSONFile != "" {
		return fmt.Errorf("-json-body and -json-file are mutually exclusive")
	}
	if w.TextBody != "" && w.TextFile != "" {
		return fmt.Errorf("-text-body and -text-file are mutually exclusive")
	}

	for _, p := range w.Percentiles {
		if p <= 0 || p >= 1 {
			return fmt.Errorf("percentile %v must be in (0, 1)", p)
		}
	}

	if w.Rate != nil && *w.Rate <= 0 {
		return fmt.Errorf("-r must be a positive integer")
	}

	if w.URL == "" {
		return fmt.Errorf("a target url is required")
	}

	return nil
}
