package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/job"
)

// cursorReport describes a table's stored watermark.
type cursorReport struct {
	Table     string `json:"table"`
	Watermark string `json:"watermark,omitempty"`
	Set       bool   `json:"set"`
}

func (r cursorReport) String() string {
	if !r.Set {
		return fmt.Sprintf("%s: no watermark", r.Table)
	}
	return fmt.Sprintf("%s: %s", r.Table, r.Watermark)
}

// NewCursorCommand creates the cursor command and its get/set subcommands.
func NewCursorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or overwrite a table's watermark",
	}
	cmd.AddCommand(newCursorGetCommand(rootOpts))
	cmd.AddCommand(newCursorSetCommand(rootOpts))
	return cmd
}

func newCursorGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "get",
		Short:         "Print the source table's watermark",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob(opts, cmd, func(j *job.Job, f *OutputFormatter) error {
				return printCursor(j, f, cmd)
			})
		},
	}
	addConfigFlag(cmd, opts)
	return cmd
}

func newCursorSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "set <value>",
		Short: "Overwrite the source table's watermark",
		Long: `Overwrite the source table's watermark.

The value is parsed like min_last_updated: timestamps (RFC 3339 or
"2006-01-02 15:04:05") become times, integers stay integers, anything
else is stored as text. Moving the watermark backwards makes the next
pass re-read rows; moving it forwards skips them.

Example:
  rowsync cursor set --config job.yaml "2024-01-01T00:00:00Z"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			wm := cursor.ParseLiteral(args[0])
			return withJob(opts, cmd, func(j *job.Job, f *OutputFormatter) error {
				if err := j.Engine().SetWatermark(cmd.Context(), wm); err != nil {
					_ = f.Error(ErrCodeCommitFailed, err.Error(), nil)
					return WrapExitError(ExitFailure, "failed to set watermark", err)
				}
				return printCursor(j, f, cmd)
			})
		},
	}
	addConfigFlag(cmd, opts)
	return cmd
}

// withJob opens the configured job, runs fn and closes the job.
func withJob(opts *JobOptions, cmd *cobra.Command, fn func(*job.Job, *OutputFormatter) error) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := configureLogging(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd)
	defer stop()
	cmd.SetContext(ctx)

	j, err := openJob(ctx, f, opts.Config, job.WithLogger(logger))
	if err != nil {
		return err
	}
	defer closeJob(j)
	return fn(j, f)
}

func printCursor(j *job.Job, f *OutputFormatter, cmd *cobra.Command) error {
	wm, ok, err := j.Engine().Watermark(cmd.Context())
	if err != nil {
		_ = f.Error(ErrCodeOpen, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read watermark", err)
	}
	report := cursorReport{Table: j.Config().Source.Table, Set: ok}
	if ok {
		report.Watermark = wm.String()
	}
	return f.Success(report)
}
