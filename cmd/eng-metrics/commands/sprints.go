package commands

import (
	"fmt"

	"eng-metrics/internal/fetcher"
	"eng-metrics/internal/visuals"

	"github.com/spf13/cobra"
)

var (
	sprintBoard int
	sprintLimit int
	sprintForce bool
)

var sprintsCmd = &cobra.Command{
	Use:   "sprints",
	Short: "Print the running sprint history of a board",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := engine.SprintHistory(cmd.Context(), fetcher.SprintQuery{
			BoardID: sprintBoard,
			Limit:   sprintLimit,
			Force:   sprintForce,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if err := printJSON(out, history.Ordered()); err != nil {
			return err
		}
		if cfg.EnableMermaidCharts && len(history.Order) > 0 {
			fmt.Fprintln(out, visuals.GenerateVelocityChart(history))
		}
		return nil
	},
}

var (
	dashboardForce bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard [jql...]",
	Short: "Print the dashboard over the given or configured queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		jqls := args
		if len(jqls) == 0 {
			jqls = cfg.RefreshJQL
		}
		queries := make([]fetcher.Query, 0, len(jqls))
		for _, jql := range jqls {
			queries = append(queries, fetcher.Query{JQL: jql})
		}

		d, err := engine.Dashboard(cmd.Context(), queries, dashboardForce)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

func init() {
	sprintsCmd.Flags().IntVar(&sprintBoard, "board", 0, "agile board ID")
	sprintsCmd.Flags().IntVar(&sprintLimit, "limit", 0, "keep only the most recent sprints")
	sprintsCmd.Flags().BoolVar(&sprintForce, "force", false, "refetch closed sprints too")
	_ = sprintsCmd.MarkFlagRequired("board")

	dashboardCmd.Flags().BoolVar(&dashboardForce, "force", false, "rebuild from fresh data")

	rootCmd.AddCommand(sprintsCmd, dashboardCmd)
}
