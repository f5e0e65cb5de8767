package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rowsync/internal/config"
	"github.com/roach88/rowsync/internal/job"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	JobOptions
	CheckSchema bool
}

// ValidationResult describes a config that loaded cleanly.
type ValidationResult struct {
	Valid         bool   `json:"valid"`
	Name          string `json:"name"`
	Source        string `json:"source"`
	Destination   string `json:"destination"`
	MappedFields  int    `json:"mapped_fields"`
	NaturalKeys   int    `json:"natural_keys"`
	CursorBackend string `json:"cursor_backend"`
	SchemaChecked bool   `json:"schema_checked"`
}

func (r ValidationResult) String() string {
	s := fmt.Sprintf("✓ %s: %s -> %s (%d fields, %d natural key, cursor %s)",
		r.Name, r.Source, r.Destination, r.MappedFields, r.NaturalKeys, r.CursorBackend)
	if r.SchemaChecked {
		s += "\n✓ live tables match the mapping"
	}
	return s
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{JobOptions: JobOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a job config without running a pass",
		Long: `Load a job config, apply defaults and check it against the job schema.

With --check-schema the source and destination databases are opened and
their tables are compared against the mapping; nothing is written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	addConfigFlag(cmd, &opts.JobOptions)
	cmd.Flags().BoolVar(&opts.CheckSchema, "check-schema", false, "compare the mapping against the live tables")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(f, opts.Config)
	if err != nil {
		return err
	}
	result := summarizeConfig(cfg)

	if opts.CheckSchema {
		logger := configureLogging(opts.RootOptions, cmd.ErrOrStderr())
		ctx, stop := signalContext(cmd)
		defer stop()

		j, err := job.Open(ctx, cfg, job.WithLogger(logger))
		if err != nil {
			_ = f.Error(ErrCodeOpen, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open job", err)
		}
		defer closeJob(j)

		if err := j.CheckSchema(ctx); err != nil {
			_ = f.Error(ErrCodeSchemaDrift, err.Error(), nil)
			return WrapExitError(ExitFailure, "schema check failed", err)
		}
		result.SchemaChecked = true
	}

	return f.Success(result)
}

func summarizeConfig(cfg *config.Job) ValidationResult {
	r := ValidationResult{
		Valid:         true,
		Name:          cfg.Name,
		Source:        cfg.Source.Driver + ":" + cfg.Source.Table,
		Destination:   cfg.Destination.Driver + ":" + cfg.Destination.Table,
		MappedFields:  len(cfg.Mapping),
		CursorBackend: cfg.Cursor.Backend,
	}
	for _, e := range cfg.Mapping {
		if e.NaturalKey {
			r.NaturalKeys++
		}
	}
	return r
}
