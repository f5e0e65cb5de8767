package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/rowsync/internal/config"
	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/engine"
	"github.com/roach88/rowsync/internal/job"
	"github.com/roach88/rowsync/internal/mapping"
	"github.com/roach88/rowsync/internal/reconcile"
	"github.com/roach88/rowsync/internal/row"
	"github.com/roach88/rowsync/internal/store"
	"github.com/roach88/rowsync/internal/testutil"
)

// DefaultMapping is the fixture mapping used when a scenario names none.
var DefaultMapping = []mapping.Entry{
	{Dest: "dasData", Src: "data_1", NaturalKey: true},
	{Dest: "dasData1", Src: "data_2"},
	{Dest: "dasData2", Src: "data_3"},
}

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and fixed pass IDs.
type Harness struct {
	job    *job.Job
	result *Result
	seq    int64
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against fresh SQLite databases in a temporary
// directory. Errors are returned only when the scenario cannot be
// executed; failed expectations are recorded in the result.
//
// Execution flow:
// 1. Create source and destination databases with the scenario schema
// 2. Open the job with fixed pass IDs and a deterministic clock
// 3. Execute setup statements
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "rowsync-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := scenario.jobConfig(filepath.Join(dir, "source.db"), filepath.Join(dir, "dest.db"))
	cfg.ApplyDefaults()
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	h := &Harness{
		result: NewResult(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	j, err := job.Open(ctx, cfg,
		job.WithLogger(h.logger),
		job.WithEngineOptions(
			engine.WithIDGenerator(engine.NewFixedGenerator(scenario.passIDs()...)),
			engine.WithClock(testutil.NewDeterministicClock()),
			engine.WithRowHook(h.onRow),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open job: %w", err)
	}
	defer j.Close()
	h.job = j

	if err := h.createSchema(ctx, scenario.Schema); err != nil {
		return nil, err
	}

	for i, step := range scenario.Setup {
		if _, _, err := h.exec(ctx, step); err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
	}

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Source:  j.SourceDB(),
		Dest:    j.DestinationDB(),
		Cursors: j.Cursors(),
		Config:  cfg,
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// jobConfig builds the job config for the scenario's databases.
func (s *Scenario) jobConfig(sourceDSN, destDSN string) *config.Job {
	cfg := &config.Job{
		Name: s.Name,
		Source: config.Source{
			Driver:         "sqlite3",
			DSN:            sourceDSN,
			Table:          orDefault(s.Source.Table, "tbl1"),
			PrimaryKey:     orDefault(s.Source.PrimaryKey, "id"),
			LastUpdated:    orDefault(s.Source.LastUpdated, "lastUpdated"),
			MinLastUpdated: s.Source.MinLastUpdated,
			SelectTemplate: s.Source.SelectTemplate,
		},
		Destination: config.Destination{
			Driver:     "sqlite3",
			DSN:        destDSN,
			Table:      orDefault(s.Destination.Table, "tbl2"),
			PrimaryKey: orDefault(s.Destination.PrimaryKey, "id"),
		},
		Mapping: s.Mapping,
	}
	if len(cfg.Mapping) == 0 {
		cfg.Mapping = DefaultMapping
	}
	return cfg
}

// passIDs returns pass-1..pass-N for the scenario's pass steps.
func (s *Scenario) passIDs() []string {
	var ids []string
	for _, step := range s.Flow {
		if step.Pass != nil {
			ids = append(ids, fmt.Sprintf("pass-%d", len(ids)+1))
		}
	}
	return ids
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (h *Harness) createSchema(ctx context.Context, schema Schema) error {
	src, dest := schema.Source, schema.Dest
	if len(src) == 0 {
		src = []string{testutil.SourceDDL}
	}
	if len(dest) == 0 {
		dest = []string{testutil.DestDDL}
	}
	for _, ddl := range src {
		if _, err := h.job.SourceDB().ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("source schema: %w", err)
		}
	}
	for _, ddl := range dest {
		if _, err := h.job.DestinationDB().ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("destination schema: %w", err)
		}
	}
	if err := h.job.EnsureCursorTable(ctx); err != nil {
		return fmt.Errorf("cursor table: %w", err)
	}
	return nil
}

// exec runs a statement and returns the database name and affected rows.
func (h *Harness) exec(ctx context.Context, step ExecStep) (string, int64, error) {
	db, name, query := h.job.SourceDB(), "source", step.Source
	if step.Dest != "" {
		db, name, query = h.job.DestinationDB(), "dest", step.Dest
	}
	res, err := db.ExecContext(ctx, query)
	if err != nil {
		return name, 0, fmt.Errorf("exec on %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return name, 0, fmt.Errorf("exec on %s: %w", name, err)
	}
	return name, n, nil
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// onRow records every reconciled row.
func (h *Harness) onRow(p *engine.Pass, index int, src row.Row, res reconcile.Result) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Type:    EventRow,
		Seq:     h.next(),
		PassID:  p.ID,
		Index:   index,
		Outcome: res.Outcome.String(),
		Key:     res.PrimaryKey,
		Row:     src.Clone(),
	})
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	eng := h.job.Engine()
	for i, step := range flow {
		switch {
		case step.Pass != nil:
			p, runErr := eng.Run(ctx)
			h.recordPass(p)
			if step.Expect != nil {
				h.checkExpect(i, p, step.Expect)
			} else if runErr != nil {
				h.result.AddError(fmt.Sprintf("flow[%d]: pass failed: %v", i, runErr))
			}
			if runErr != nil || !step.Pass.Commit {
				continue
			}
			wm, err := eng.Commit(ctx, p)
			if err != nil {
				h.result.AddError(fmt.Sprintf("flow[%d]: commit failed: %v", i, err))
				continue
			}
			h.result.Trace = append(h.result.Trace, TraceEvent{
				Type:      EventCommit,
				Seq:       h.next(),
				PassID:    p.ID,
				Watermark: wm.String(),
			})

		case step.SetWatermark != "":
			wm := cursor.ParseLiteral(step.SetWatermark)
			if err := eng.SetWatermark(ctx, wm); err != nil {
				return fmt.Errorf("flow step %d: set watermark: %w", i, err)
			}
			h.result.Trace = append(h.result.Trace, TraceEvent{
				Type:      EventSetWatermark,
				Seq:       h.next(),
				Watermark: wm.String(),
			})

		default:
			db, n, err := h.exec(ctx, step.ExecStep)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			h.result.Trace = append(h.result.Trace, TraceEvent{
				Type:     EventExec,
				Seq:      h.next(),
				DB:       db,
				Affected: n,
			})
		}

		h.logger.Info("flow step completed", "step", i)
	}
	return nil
}

func (h *Harness) recordPass(p *engine.Pass) {
	ev := TraceEvent{
		Type:      EventPass,
		Seq:       h.next(),
		PassID:    p.ID,
		Watermark: p.Start.String(),
		State:     p.State.String(),
		Rows:      p.Rows,
		Inserted:  p.Inserted,
		Updated:   p.Updated,
	}
	if p.Err != nil {
		ev.Error = p.Err.Error()
	}
	h.result.Trace = append(h.result.Trace, ev)
	h.result.Passes = append(h.result.Passes, p.Summary())
}

// checkExpect compares a pass with its expect clause.
func (h *Harness) checkExpect(step int, p *engine.Pass, want *ExpectClause) {
	var problems []string
	if got := p.State.String(); got != want.State {
		problems = append(problems, fmt.Sprintf("state = %s, want %s", got, want.State))
	}
	for _, c := range []struct {
		name string
		want *int
		got  int
	}{
		{"rows", want.Rows, p.Rows},
		{"inserted", want.Inserted, p.Inserted},
		{"updated", want.Updated, p.Updated},
	} {
		if c.want != nil && *c.want != c.got {
			problems = append(problems, fmt.Sprintf("%s = %d, want %d", c.name, c.got, *c.want))
		}
	}
	switch {
	case want.Error != "" && p.Err == nil:
		problems = append(problems, fmt.Sprintf("error = nil, want %q", want.Error))
	case want.Error != "" && !strings.Contains(p.Err.Error(), want.Error):
		problems = append(problems, fmt.Sprintf("error = %q, want it to contain %q", p.Err, want.Error))
	case want.Error == "" && p.Err != nil && want.State != "failed":
		problems = append(problems, fmt.Sprintf("unexpected error: %v", p.Err))
	}
	if len(problems) > 0 {
		h.result.AddError(fmt.Sprintf("flow[%d]: %s", step, strings.Join(problems, "; ")))
	}
}

// RunFile loads and runs a scenario file.
func RunFile(path string) (*Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	return Run(scenario)
}

// errNoStore is returned by assertions that need a database handle.
var errNoStore = errors.New("assertion requires database context")

// storeFor returns the handle an assertion targets.
func (a *AssertionContext) storeFor(db string) (*store.Store, error) {
	s := a.Dest
	if db == "source" {
		s = a.Source
	}
	if s == nil {
		return nil, errNoStore
	}
	return s, nil
}
