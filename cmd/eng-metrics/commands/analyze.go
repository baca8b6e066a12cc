package commands

import (
	"fmt"
	"strings"

	"eng-metrics/internal/fetcher"
	"eng-metrics/internal/visuals"

	"github.com/spf13/cobra"
)

var (
	analyzeJQL    string
	analyzeFilter string
	analyzeForce  bool
)

var analyzeCmd = &cobra.Command{
	Use:       "analyze {points|timing|statuses|cycle-time}",
	Short:     "Run one analysis and print it as JSON",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"points", "timing", "statuses", "cycle-time"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q := fetcher.Query{JQL: analyzeJQL, FilterID: analyzeFilter, Force: analyzeForce}
		out := cmd.OutOrStdout()

		switch args[0] {
		case "points":
			res, err := engine.Points(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(out, res)
		case "timing":
			res, err := engine.Timing(ctx, q)
			if err != nil {
				return err
			}
			if err := printJSON(out, res); err != nil {
				return err
			}
			if cfg.EnableMermaidCharts {
				fmt.Fprintln(out, visuals.GenerateStatusTimeChart(res, cfg.Workflow.InProgress))
			}
			return nil
		case "statuses":
			res, err := engine.Statuses(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(out, res)
		case "cycle-time":
			res, err := engine.CycleTime(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(out, res)
		}
		return fmt.Errorf("unknown analysis %q, expected one of %s", args[0], strings.Join(cmd.ValidArgs, ", "))
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeJQL, "jql", "", "JQL selecting the tickets")
	analyzeCmd.Flags().StringVar(&analyzeFilter, "filter", "", "saved Jira filter ID")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "bypass the cache")
	analyzeCmd.MarkFlagsMutuallyExclusive("jql", "filter")
	analyzeCmd.MarkFlagsOneRequired("jql", "filter")
	rootCmd.AddCommand(analyzeCmd)
}
