package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clientcore/internal/core"
	"clientcore/internal/httpapi"
	"clientcore/internal/observability"
	"clientcore/pkg/domain"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			prom, err := observability.NewPrometheusRecorder(reg)
			if err != nil {
				return WrapExitError(ExitCommandError, "register metrics", err)
			}
			metrics := observability.MultiRecorder{prom, observability.NewExpvarMetricsRecorder("")}

			s, err := rootOpts.open(ctx, cmd, core.WithMetrics(metrics))
			if err != nil {
				return err
			}
			defer s.Close()
			if err := reg.Register(s.svc.Collector()); err != nil {
				return WrapExitError(ExitCommandError, "register pipeline collector", err)
			}

			cancelWatch, err := s.svc.Watch(func(records []domain.ClientRecord) {
				s.log.Info("reloaded after external change", zap.Int("clients", len(records)))
			})
			switch {
			case errors.Is(err, core.ErrWatchUnsupported):
				s.log.Debug("external change notification unavailable", zap.String("driver", s.cfg.Storage.Driver))
			case err != nil:
				return WrapExitError(ExitCommandError, "start watch", err)
			default:
				defer cancelWatch()
			}

			if addr == "" {
				addr = s.cfg.HTTP.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewHandler(httpapi.Deps{Service: s.svc, Gatherer: reg, Logger: s.log.Named("http")}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				s.log.Info("listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("listen on %s", addr), err)
				}
				return nil
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return WrapExitError(ExitFailure, "shutdown", err)
			}
			s.log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
