package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rowsync/internal/config"
	"github.com/roach88/rowsync/internal/job"
)

type initReport struct {
	Backend string `json:"backend"`
	Table   string `json:"table,omitempty"`
	Path    string `json:"path,omitempty"`
}

func (r initReport) String() string {
	if r.Backend == config.BackendBadger {
		return fmt.Sprintf("✓ cursor store ready at %s", r.Path)
	}
	return fmt.Sprintf("✓ cursor table %s ready", r.Table)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the cursor table",
		Long: `Create the job's cursor table if it does not exist.

For the badger backend the store directory is created on open and
nothing else is done.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob(opts, cmd, func(j *job.Job, f *OutputFormatter) error {
				if err := j.EnsureCursorTable(cmd.Context()); err != nil {
					_ = f.Error(ErrCodeOpen, err.Error(), nil)
					return WrapExitError(ExitCommandError, "failed to create cursor table", err)
				}
				cfg := j.Config()
				report := initReport{Backend: cfg.Cursor.Backend}
				if cfg.Cursor.Backend == config.BackendBadger {
					report.Path = cfg.Cursor.Path
				} else {
					report.Table = cfg.Cursor.Table
				}
				return f.Success(report)
			})
		},
	}

	addConfigFlag(cmd, opts)
	return cmd
}
