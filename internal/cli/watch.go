package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clientcore/internal/core"
	"clientcore/internal/pipeline"
	"clientcore/pkg/domain"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the pipeline whenever another process changes the clients",
		Long: `Watch the persisted clients and print the pipeline counts after every
external change. Requires a storage driver with change notification (fs).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			changes := make(chan []domain.ClientRecord, 1)
			cancel, err := s.svc.Watch(func(records []domain.ClientRecord) {
				select {
				case changes <- records:
				default:
				}
			})
			if errors.Is(err, core.ErrWatchUnsupported) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("storage driver %q", s.cfg.Storage.Driver), err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "start watch", err)
			}
			defer cancel()

			report := func(records []domain.ClientRecord) error {
				summary := pipeline.Summarize(records, s.svc.Stages())
				if rootOpts.Format == "json" {
					return json.NewEncoder(out).Encode(summary)
				}
				if err := pipeline.RenderBars(out, summary, 40); err != nil {
					return err
				}
				_, err := fmt.Fprintln(out)
				return err
			}
			if err := report(s.svc.Store().All()); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case records := <-changes:
					if err := report(records); err != nil {
						return err
					}
				}
			}
		},
	}
}
