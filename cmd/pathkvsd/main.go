// Command pathkvsd serves a pathkvs database over the line-oriented
// wire protocol, alongside a Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pathkvs/internal/config"
	"pathkvs/internal/metrics"
	"pathkvs/internal/wire"
	"pathkvs/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pathkvsd",
	Short: "pathkvsd serves a pathkvs database over TCP",
	RunE:  runServe,
}

func init() {
	rootCmd.Flags().String("config", "", "path to a HuJSON config file (optional)")
	rootCmd.Flags().String("data", "", "path to the durability log (overrides config)")
	rootCmd.Flags().String("listen", "", "wire protocol listen address (overrides config)")
	rootCmd.Flags().String("metrics-listen", "", "metrics HTTP listen address (overrides config)")
	rootCmd.Flags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("data"); v != "" {
		cfg.DataPath = v
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("metrics-listen"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	m := metrics.New()
	db, err := store.Open(cfg.DataPath, store.WithLogger(logger), store.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("opening database %s: %w", cfg.DataPath, err)
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.DataPath, "generation", db.Stats().Generation)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	logger.Info("wire protocol listening", "addr", ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := wire.NewServer(db, logger)
	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- srv.Serve(ctx, ln)
	}()

	go reportStats(ctx, db, m, time.Second)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "err", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErrCh:
		if err != nil {
			logger.Error("wire server exited", "err", err)
		}
	}

	if metricsServer != nil {
		metricsServer.Close()
	}
	return srv.Close()
}

// reportStats polls db.Stats() on interval and pushes the result into
// m's gauges, until ctx is cancelled.
func reportStats(ctx context.Context, db *store.Database, m *metrics.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetStats(db.Stats())
		}
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
