package harness

import (
	"github.com/roach88/rowsync/internal/engine"
	"github.com/roach88/rowsync/internal/row"
)

// Trace event types.
const (
	EventExec         = "exec"
	EventRow          = "row"
	EventPass         = "pass"
	EventCommit       = "commit"
	EventSetWatermark = "set_watermark"
)

// TraceEvent is one observable step of a scenario run.
// Which fields are set depends on Type.
type TraceEvent struct {
	Type   string `json:"type"`
	Seq    int64  `json:"seq"`
	PassID string `json:"pass,omitempty"`

	// exec
	DB       string `json:"db,omitempty"`
	Affected int64  `json:"affected,omitempty"`

	// row
	Index   int     `json:"index,omitempty"`
	Outcome string  `json:"outcome,omitempty"`
	Key     any     `json:"key,omitempty"`
	Row     row.Row `json:"row,omitempty"`

	// pass, commit, set_watermark
	Watermark string `json:"watermark,omitempty"`
	State     string `json:"state,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Inserted  int    `json:"inserted,omitempty"`
	Updated   int    `json:"updated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains every flow event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Passes summarizes every pass the flow ran.
	Passes []engine.Summary `json:"passes,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns how many events of type event (and outcome, if set)
// the trace holds.
func (r *Result) Count(event, outcome string) int {
	n := 0
	for _, e := range r.Trace {
		if e.Type == event && (outcome == "" || e.Outcome == outcome) {
			n++
		}
	}
	return n
}
