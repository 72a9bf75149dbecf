// Package cli implements the clientcore command line.
package cli

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clientcore/internal/config"
	"clientcore/internal/core"
	"clientcore/internal/errs"
	"clientcore/internal/logging"
	"clientcore/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Trace      bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "clientcore",
		Short:         "clientcore - client pipeline tracker",
		Long:          "Track clients through the Lead, Contacted, Qualified, Proposal and Closed stages, with CSV export and import.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "write store operation spans as JSON lines to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewExportsCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewPipelineCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// session is an opened service plus the resources it owns.
type session struct {
	cfg    config.Config
	svc    *core.Service
	log    *zap.Logger
	closed bool
}

func (s *session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.svc.Close(); err != nil {
		s.log.Warn("close storage", zap.Error(err))
	}
	_ = s.log.Sync()
}

// open loads configuration and opens the service. extra options are applied
// after the ones derived from flags.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command, extra ...core.Option) (*session, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	logCfg := cfg.LoggingOptions()
	if o.Verbose {
		logCfg.Level = "debug"
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build logger", err)
	}
	opts := []core.Option{core.WithLogger(log)}
	if o.Trace {
		opts = append(opts, core.WithTracer(observability.NewJSONTracer(cmd.ErrOrStderr())))
	}
	opts = append(opts, extra...)
	svc, err := core.Open(ctx, cfg, opts...)
	if err != nil {
		_ = log.Sync()
		return nil, WrapExitError(ExitCommandError, "open storage", err)
	}
	return &session{cfg: cfg, svc: svc, log: log}, nil
}

// fail converts err to an ExitError. In json mode the error envelope is
// written too; text mode leaves printing to main.
func fail(f *OutputFormatter, op string, err error) error {
	code := errs.CodeOf(err)
	if f.Format == "json" {
		_ = f.Error(string(code), errs.MessageOf(err))
	}
	exit := ExitFailure
	if code == errs.Internal {
		exit = ExitCommandError
	}
	return WrapExitError(exit, op, err)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid client id %q", raw))
	}
	return id, nil
}
