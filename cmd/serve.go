package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/notifyd/internal/api"
	"github.com/shaharia-lab/notifyd/internal/build"
	"github.com/shaharia-lab/notifyd/internal/config"
	"github.com/shaharia-lab/notifyd/internal/server"
)

const drainTimeout = 30 * time.Second

// NewServeCmd returns the "serve" subcommand that runs the HTTP API and the
// delivery workers.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notification API and delivery workers",
		Long: `Start the notifyd HTTP server. Notifications posted to /api/notifications
are dispatched and delivered in the background; delivery history is available
under /api/deliveries and Prometheus metrics under /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// CLI flags override env config.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			serverURL := fmt.Sprintf("http://localhost:%d", cfg.Port)
			logFile := filepath.Join(cfg.LogDir(), "system.log")
			printBanner(build.Version, serverURL, logFile)

			if err := runServe(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "An error occurred. Please check the logs at: %s\n", logFile)
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", cfg.Port, "HTTP server port (overrides PORT env var)")
	return cmd
}

func runServe(cfg *config.AppConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	a.logger.Info("notifyd starting",
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("version", build.Version),
		slog.String("commit", build.CommitSHA),
		slog.String("build_date", build.BuildDate),
	)

	if _, err := a.sweeper.Recover(ctx, startedAt); err != nil {
		return errors.Join(err, a.Close(ctx))
	}
	if err := a.sweeper.Start(ctx); err != nil {
		return errors.Join(err, a.Close(ctx))
	}
	a.queue.Start(ctx)

	srv := server.New(api.New(a.svc, a.logger), server.Options{
		Port:           cfg.Port,
		Metrics:        a.metrics.Handler(),
		Health:         a.health,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         a.logger,
	})
	runErr := srv.Run(ctx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	a.logger.Info("draining delivery queue", "outstanding", a.queue.Outstanding())
	if err := a.Close(drainCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *app) health() map[string]any {
	channels := map[string]bool{}
	for _, name := range a.channels.Names() {
		d, err := a.channels.Lookup(name)
		channels[name] = err == nil && d.Available()
	}
	return map[string]any{
		"version":     build.Version,
		"outstanding": a.queue.Outstanding(),
		"channels":    channels,
	}
}

// printBanner writes the startup banner to stdout. All structured logs go to
// the log file instead.
func printBanner(version, serverURL, logFile string) {
	fmt.Print(`
             _   _  __           _
 _ __   ___ | |_(_)/ _|_   _  __| |
| '_ \ / _ \| __| | |_| | | |/ _` + "`" + ` |
| | | | (_) | |_| |  _| |_| | (_| |
|_| |_|\___/ \__|_|_|  \__, |\__,_|
                       |___/

`)
	fmt.Printf("notifyd %s running.\n", version)
	fmt.Printf("API: %s/api\n", serverURL)
	fmt.Printf("Logs: %s\n\n", logFile)
}
