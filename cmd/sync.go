package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/api"
	"github.com/JakeFAU/questledger/internal/reconcile"
)

const metricsShutdownTimeout = 5 * time.Second

func newSyncCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the catalog from the wiki",
		Long: `Fetches every configured category page (using the page cache when fresh),
extracts the listed entries and saves the merged catalog. Categories that fail
keep their previous entries. Interrupt to cancel; the stored catalog is then
left unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := metricsAddr
			if addr == "" {
				addr = a.Config().Metrics.Addr
			}
			if addr != "" {
				ready := func() error { return a.Store().Ping(ctx) }
				shutdown, err := serveMetrics(ctx, addr, api.NewHandler(a.Store(), ready, a.Logger()), a.Logger())
				if err != nil {
					return err
				}
				defer shutdown()
			}
			return runSync(ctx, cmd, a)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /api/runs on this address while syncing")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, a App) error {
	out := cmd.OutOrStdout()
	res, err := a.Sync(ctx, func(p reconcile.Progress) {
		fmt.Fprintf(out, "[%3d%%] %s\n", p.Percent, p.Label)
	})
	if errors.Is(err, reconcile.ErrCanceled) {
		fmt.Fprintln(out, "Sync canceled; catalog unchanged.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	fmt.Fprintf(out, "[100%%] Sync complete: %d categories", len(res.Catalog))
	if len(res.Errors) == 0 {
		fmt.Fprintln(out)
		return nil
	}
	fmt.Fprintf(out, ", %d kept previous entries:\n", len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
	return nil
}

// serveMetrics starts handler on addr and returns a function that shuts it
// down.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}, nil
}
