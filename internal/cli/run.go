package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rowsync/internal/engine"
	"github.com/roach88/rowsync/internal/job"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	JobOptions
	Commit      bool
	CheckSchema bool
	Init        bool

	// IDGenerator overrides the pass id generator (for testing).
	// If nil, the engine's UUIDv7 generator is used.
	IDGenerator engine.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{JobOptions: JobOptions{RootOptions: rootOpts}})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass",
		Long: `Run one sync pass: read every source row changed since the table's
watermark, map it, and insert or update the matching destination row.

The watermark only moves when --commit is given and the pass finished.
A failed pass leaves the rows it already wrote in place.

Exit codes:
  0 - Pass finished (and committed, with --commit)
  1 - Pass or commit failed
  2 - Command error (bad config, unreachable database, etc.)

Examples:
  rowsync run --config job.yaml
  rowsync run --config job.yaml --commit
  rowsync run --config ./jobs/tbl1 --commit --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, cmd)
		},
	}

	addConfigFlag(cmd, &opts.JobOptions)
	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "advance the watermark after a finished pass")
	cmd.Flags().BoolVar(&opts.CheckSchema, "check-schema", false, "compare the mapping against the live tables first")
	cmd.Flags().BoolVar(&opts.Init, "init", false, "create the cursor table if it is missing")

	return cmd
}

func runPass(opts *RunOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := configureLogging(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd)
	defer stop()

	jobOpts := []job.Option{job.WithLogger(logger)}
	if opts.IDGenerator != nil {
		jobOpts = append(jobOpts, job.WithEngineOptions(engine.WithIDGenerator(opts.IDGenerator)))
	}
	j, err := openJob(ctx, f, opts.Config, jobOpts...)
	if err != nil {
		return err
	}
	defer closeJob(j)

	if opts.Init {
		if err := j.EnsureCursorTable(ctx); err != nil {
			_ = f.Error(ErrCodeOpen, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to create cursor table", err)
		}
	}
	if opts.CheckSchema {
		if err := j.CheckSchema(ctx); err != nil {
			_ = f.Error(ErrCodeSchemaDrift, err.Error(), nil)
			return WrapExitError(ExitCommandError, "schema check failed", err)
		}
		f.VerboseLog("Schema check passed")
	}

	eng := j.Engine()
	p, err := eng.Run(ctx)
	if err != nil {
		_ = f.Error(ErrCodePassFailed, err.Error(), passReport(p.Summary()))
		return WrapExitError(ExitFailure, "pass failed", err)
	}

	if opts.Commit {
		if _, err := eng.Commit(ctx, p); err != nil {
			_ = f.Error(ErrCodeCommitFailed, err.Error(), passReport(p.Summary()))
			return WrapExitError(ExitFailure, "commit failed", err)
		}
	}

	return f.Success(passReport(p.Summary()))
}

// passReport is a pass summary with a human-readable rendering.
type passReport engine.Summary

func (r passReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pass %s on %s: %s\n", r.PassID, r.Table, r.State)
	fmt.Fprintf(&b, "  start watermark: %s\n", r.Start)
	fmt.Fprintf(&b, "  rows: %d (inserted %d, updated %d)", r.Rows, r.Inserted, r.Updated)
	if r.Committed != "" {
		fmt.Fprintf(&b, "\n  committed watermark: %s", r.Committed)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\n  error: %s", r.Error)
	}
	return b.String()
}
