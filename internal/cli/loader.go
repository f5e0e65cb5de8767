package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rowsync/internal/config"
	"github.com/roach88/rowsync/internal/job"
)

// JobOptions are the flags shared by every command that works on a job.
type JobOptions struct {
	*RootOptions
	Config string
}

func addConfigFlag(cmd *cobra.Command, opts *JobOptions) {
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the job config (YAML, JSON, .cue or CUE directory)")
	_ = cmd.MarkFlagRequired("config")
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// configureLogging installs a text handler on the command's stderr as the
// default logger, at Debug level when verbose.
func configureLogging(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig loads the job config, reporting failures through f.
func loadConfig(f *OutputFormatter, path string) (*config.Job, error) {
	f.VerboseLog("Loading config %s", path)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}

	var loadErr *config.LoadError
	var valErr *config.ValidationError
	switch {
	case errors.As(err, &valErr):
		_ = f.Error(valErr.Code, "invalid config", valErr.Problems)
	case errors.As(err, &loadErr):
		_ = f.Error(loadErr.Code, loadErr.Message, nil)
	default:
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	}
	return nil, WrapExitError(ExitCommandError, "failed to load config", err)
}

// openJob loads the config and connects to every database it names.
func openJob(ctx context.Context, f *OutputFormatter, path string, opts ...job.Option) (*job.Job, error) {
	cfg, err := loadConfig(f, path)
	if err != nil {
		return nil, err
	}
	f.VerboseLog("Opening job %s (%s.%s -> %s.%s)", cfg.Name,
		cfg.Source.Driver, cfg.Source.Table, cfg.Destination.Driver, cfg.Destination.Table)

	j, err := job.Open(ctx, cfg, opts...)
	if err != nil {
		_ = f.Error(ErrCodeOpen, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open job", err)
	}
	return j, nil
}

func closeJob(j *job.Job) {
	if err := j.Close(); err != nil {
		slog.Error("error closing job", "job", j.Name(), "error", err)
	}
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
