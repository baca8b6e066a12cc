package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// QueryInput selects tickets by JQL or by saved filter.
type QueryInput struct {
	JQL           string `json:"jql,omitempty" jsonschema:"JQL selecting the tickets to analyze"`
	FilterID      string `json:"filter_id,omitempty" jsonschema:"ID of a saved Jira filter, used instead of jql"`
	ForceRefresh  bool   `json:"force_refresh,omitempty" jsonschema:"bypass the cache and fetch fresh data from Jira"`
	MaxAgeMinutes int    `json:"max_age_minutes,omitempty" jsonschema:"accept cached results up to this age instead of the configured window"`
}

// SprintHistoryInput selects the sprints of a board.
type SprintHistoryInput struct {
	BoardID      int  `json:"board_id" jsonschema:"ID of the Jira agile board"`
	Limit        int  `json:"limit,omitempty" jsonschema:"only keep the most recent sprints"`
	ForceRefresh bool `json:"force_refresh,omitempty" jsonschema:"refetch every sprint report, including closed sprints"`
}

// DashboardInput lists the queries summarised on the dashboard.
type DashboardInput struct {
	Queries      []QueryInput `json:"queries,omitempty" jsonschema:"queries to summarise; defaults to the configured refresh queries"`
	ForceRefresh bool         `json:"force_refresh,omitempty" jsonschema:"rebuild the dashboard from fresh data"`
}

const queryGuidance = " Provide exactly one of 'jql' or 'filter_id'. Results are cached; pass 'force_refresh' only when the user asks for fresh numbers."

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name: "analyze_points",
		Description: "Break down story points of the selected tickets into complete, incomplete and abandoned, globally and per developer. " +
			"Also counts tickets per status and unpointed tickets." + queryGuidance,
	}, handle(s.handleAnalyzePoints))

	sdk.AddTool(s.server, &sdk.Tool{
		Name: "analyze_timing",
		Description: "Measure how long each ticket spent in the in-progress statuses, reconstructed from the Jira changelog. " +
			"Returns per-ticket seconds, totals per status and the median per status." + queryGuidance,
	}, handle(s.handleAnalyzeTiming))

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "analyze_statuses",
		Description: "Count the selected tickets per status and report how many are not yet resolved." + queryGuidance,
	}, handle(s.handleAnalyzeStatuses))

	sdk.AddTool(s.server, &sdk.Tool{
		Name: "analyze_cycle_time",
		Description: "List tickets that exceeded their cycle-time ceiling: In Progress beyond the limit for their story points, " +
			"Blocked or Quality Review beyond the fixed limits. Largest overage first." + queryGuidance,
	}, handle(s.handleAnalyzeCycleTime))

	sdk.AddTool(s.server, &sdk.Tool{
		Name: "analyze_sprint_history",
		Description: "Fold the sprint reports of a board into running sums and averages of completed, not completed, punted and added work, " +
			"in points and ticket counts. Closed sprints are cached; the active sprint is always refetched.",
	}, handle(s.handleSprintHistory))

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_dashboard",
		Description: "Summarise points, remaining tickets and cycle-time violations for several queries at once.",
	}, handle(s.handleDashboard))
}

// handle adapts a handler returning an envelope to the SDK's typed tool
// signature. Handler errors become tool errors rather than protocol errors.
func handle[In any](h func(context.Context, In) (ResponseEnvelope, error)) sdk.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *sdk.CallToolRequest, in In) (*sdk.CallToolResult, any, error) {
		env, err := h(ctx, in)
		if err != nil {
			name := ""
			if req != nil && req.Params != nil {
				name = req.Params.Name
			}
			log.Error().Err(err).Str("tool", name).Msg("Tool call failed")
			return errorResult(err), nil, nil
		}
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: formatResult(env)}},
		}, nil, nil
	}
}
