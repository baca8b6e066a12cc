package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"eng-metrics/internal/jobs"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scheduleNow bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Refresh the configured queries and boards on a cron schedule",
	Long: `Runs the refresh job on REFRESH_CRON, warming the cache for every REFRESH_JQL
query and REFRESH_BOARDS board, and exposes Prometheus metrics on METRICS_ADDR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cr, err := jobs.NewCron(cfg.RefreshCron, jobs.Targets{JQL: cfg.RefreshJQL, Boards: cfg.RefreshBoards}, log.Logger, engine)
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", server.Addr).Msg("Metrics endpoint listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics endpoint failed")
				stop()
			}
		}()

		if scheduleNow {
			if err := cr.RunOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("Initial refresh finished with errors")
			}
		}

		cr.Start()
		log.Info().Str("schedule", cfg.RefreshCron).Msg("Refresh scheduler started")
		<-ctx.Done()

		log.Info().Msg("Shutting down scheduler")
		cr.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "run one refresh before waiting for the schedule")
	rootCmd.AddCommand(scheduleCmd)
}
