package stats

import "time"

// Outcome is the result of a single completed request attempt: either a
// response status, or an error category string.
type Outcome struct {
	// Status is the HTTP status code. Valid only when Err == "".
	Status int

	// Err, when non-empty, is the canonical error text (taken from the
	// error's underlying source) and is the key used in the error
	// histogram. Status is meaningless when Err is non-empty.
	Err string

	// ErrStatus is an HTTP status code carried by the error itself (for
	// example a non-2xx response treated as an error by a higher layer).
	// Zero means the error carries no status.
	ErrStatus int
}

// IsErr reports whether this outcome represents a per-request error rather
// than a completed response.
func (o Outcome) IsErr() bool {
	return o.Err != ""
}

// Message is an immutable record produced per completed request attempt.
// Invariant: RspAt >= ReqAt. Created by a worker, consumed exactly once by
// the Aggregator, then dropped.
type Message struct {
	ReqAt   time.Time
	RspAt   time.Time
	Outcome Outcome
}
