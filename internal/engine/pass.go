package engine

import (
	"time"

	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/reconcile"
	"github.com/roach88/rowsync/internal/row"
)

// State is the lifecycle position of a pass.
type State int

const (
	Idle State = iota
	Reading
	Reconciling
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Reconciling:
		return "reconciling"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pass is the record of one sync run. It is created by Run and owned by
// the caller afterwards; no two passes share a Pass value.
type Pass struct {
	ID    string
	Table string
	State State

	// Start is the watermark the pass read from. HadWatermark is false
	// when none was recorded and the source floor was used.
	Start        cursor.Watermark
	HadWatermark bool

	// LastWritten is the last source row successfully reconciled, and
	// LastKey the destination primary key it was written to.
	LastWritten row.Row
	LastKey     any

	Rows     int
	Inserted int
	Updated  int

	// Committed is the watermark stored by Commit, if any.
	Committed cursor.Watermark

	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the pass ran.
func (p *Pass) Duration() time.Duration {
	if p.FinishedAt.IsZero() {
		return 0
	}
	return p.FinishedAt.Sub(p.StartedAt)
}

func (p *Pass) record(src row.Row, res reconcile.Result) {
	p.Rows++
	switch res.Outcome {
	case reconcile.Inserted:
		p.Inserted++
	case reconcile.Updated:
		p.Updated++
	}
	p.LastWritten = src
	p.LastKey = res.PrimaryKey
}

// Summary is a flat, serializable view of a pass.
type Summary struct {
	PassID       string `json:"pass_id"`
	Table        string `json:"table"`
	State        string `json:"state"`
	Start        string `json:"start_watermark"`
	HadWatermark bool   `json:"had_watermark"`
	Rows         int    `json:"rows"`
	Inserted     int    `json:"inserted"`
	Updated      int    `json:"updated"`
	LastKey      any    `json:"last_key,omitempty"`
	Committed    string `json:"committed_watermark,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Summary returns the pass as a Summary.
func (p *Pass) Summary() Summary {
	s := Summary{
		PassID:       p.ID,
		Table:        p.Table,
		State:        p.State.String(),
		Start:        p.Start.String(),
		HadWatermark: p.HadWatermark,
		Rows:         p.Rows,
		Inserted:     p.Inserted,
		Updated:      p.Updated,
		LastKey:      p.LastKey,
	}
	if !p.Committed.IsZero() {
		s.Committed = p.Committed.String()
	}
	if p.Err != nil {
		s.Error = p.Err.Error()
	}
	return s
}
