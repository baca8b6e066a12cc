package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"eng-metrics/internal/audit"
	"eng-metrics/internal/config"
	"eng-metrics/internal/docstore"
	"eng-metrics/internal/fetcher"
	"eng-metrics/internal/jira"
	"eng-metrics/internal/logging"
	"eng-metrics/internal/mcp"
	"eng-metrics/internal/stats"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig

	store    docstore.Store
	auditLog io.WriteCloser
	engine   *fetcher.Fetcher
)

var rootCmd = &cobra.Command{
	Use:   "eng-metrics",
	Short: "Engineering metrics over Jira, served as MCP tools",
	Long: `eng-metrics computes story point breakdowns, time in status, cycle-time
violations and sprint history from Jira and caches the results in time windows.
Without a subcommand it serves the analyses as MCP tools over stdio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if err := logging.Init(verbose, cfg.LogDir); err != nil {
			return err
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("store", cfg.Store.Backend).
			Msg("eng-metrics starting")

		return setup(cmd.Context())
	},
	RunE: serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analyses as MCP tools over stdio (default)",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	server := mcp.NewServer(cfg, engine, Version)
	return server.Start(cmd.Context())
}

// setup opens the store and builds the cache-through engine.
func setup(ctx context.Context) error {
	var err error
	store, err = docstore.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	auditLog, err = logging.AuditWriter(cfg.LogDir)
	if err != nil {
		return err
	}
	listener := audit.Multi{
		audit.NewLogListener(auditLog),
		audit.NewPrometheusListener(prometheus.DefaultRegisterer),
	}

	agg := stats.NewAggregator(stats.NewStaticWorkflow(cfg.Workflow), cfg.CycleLimits, time.Now)
	engine, err = fetcher.New(jira.NewClient(cfg.Jira), store, agg, fetcher.Options{
		PointsField: cfg.StoryPointsField,
		AnalysisTTL: cfg.AnalysisTTL,
		SprintTTL:   cfg.SprintTTL,
		Concurrency: cfg.FetchConcurrency,
		Listener:    listener,
	})
	return err
}

// teardown closes whatever setup opened, including after a partial setup
// or a failed command.
func teardown() error {
	var errs []error
	if store != nil {
		errs = append(errs, store.Close())
		store = nil
	}
	if auditLog != nil {
		errs = append(errs, auditLog.Close())
		auditLog = nil
	}
	return errors.Join(errs...)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// Execute runs the root command and releases the store and audit log on
// every exit path.
func Execute() (err error) {
	defer func() {
		err = errors.Join(err, teardown())
	}()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(serveCmd)
}
