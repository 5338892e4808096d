package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iammeizu/voicesplit/config"
	"github.com/iammeizu/voicesplit/ebmlsplit"
	"github.com/iammeizu/voicesplit/metrics"
	"github.com/iammeizu/voicesplit/observability"
	"github.com/iammeizu/voicesplit/parser"
	"github.com/iammeizu/voicesplit/signalserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the split server",
	Long: `Start the HTTP server.

The server provides:
- POST /split to cut an uploaded WebM stream
- GET /stream, a WebSocket that buffers a live stream and returns chunks
- /healthz and /metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 9001, "Port to listen on")
	serveCmd.Flags().Int("max-buffer-bytes", 4<<20, "Session size that triggers an automatic split (0 disables)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("session.max_buffer_bytes", serveCmd.Flags().Lookup("max-buffer-bytes"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}
	logger := observability.WithComponent(slog.Default(), "server")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	splitter := ebmlsplit.New(parser.WebM{},
		ebmlsplit.WithLogger(observability.WithComponent(slog.Default(), "ebmlsplit")))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := signalserver.NewServer(cfg, splitter, logger, m, reg)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
