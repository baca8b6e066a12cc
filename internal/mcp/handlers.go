package mcp

import (
	"context"
	"fmt"
	"time"

	"eng-metrics/internal/errdefs"
	"eng-metrics/internal/fetcher"
	"eng-metrics/internal/visuals"
)

func (s *Server) handleAnalyzePoints(ctx context.Context, in QueryInput) (ResponseEnvelope, error) {
	res, err := s.analyzer.Points(ctx, in.query())
	if err != nil {
		return ResponseEnvelope{}, err
	}

	var warnings []string
	if res.IssueCount == 0 {
		warnings = append(warnings, "The query matched no tickets.")
	}
	if res.Unpointed > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d tickets have no story points and count as zero.", res.Unpointed, res.IssueCount))
	}
	return WrapResponse(res, warnings...), nil
}

func (s *Server) handleAnalyzeTiming(ctx context.Context, in QueryInput) (ResponseEnvelope, error) {
	res, err := s.analyzer.Timing(ctx, in.query())
	if err != nil {
		return ResponseEnvelope{}, err
	}

	env := WrapResponse(res)
	if len(res.Issues) == 0 {
		env.Warnings = append(env.Warnings, "No ticket has entered an in-progress status.")
	}
	if s.chartsEnabled() && len(res.Issues) > 0 {
		env.Chart = visuals.GenerateStatusTimeChart(res, s.cfg.Workflow.InProgress)
	}
	return env, nil
}

func (s *Server) handleAnalyzeStatuses(ctx context.Context, in QueryInput) (ResponseEnvelope, error) {
	res, err := s.analyzer.Statuses(ctx, in.query())
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return WrapResponse(res), nil
}

func (s *Server) handleAnalyzeCycleTime(ctx context.Context, in QueryInput) (ResponseEnvelope, error) {
	violations, err := s.analyzer.CycleTime(ctx, in.query())
	if err != nil {
		return ResponseEnvelope{}, err
	}

	data := map[string]any{
		"violation_count": len(violations),
		"violations":      presentViolations(violations),
	}
	return WrapResponse(data), nil
}

func (s *Server) handleSprintHistory(ctx context.Context, in SprintHistoryInput) (ResponseEnvelope, error) {
	if in.BoardID <= 0 {
		return ResponseEnvelope{}, fmt.Errorf("board_id must be positive: %w", errdefs.ErrConfiguration)
	}
	if in.Limit < 0 {
		return ResponseEnvelope{}, fmt.Errorf("limit must not be negative: %w", errdefs.ErrConfiguration)
	}

	history, err := s.analyzer.SprintHistory(ctx, fetcher.SprintQuery{BoardID: in.BoardID, Limit: in.Limit, Force: in.ForceRefresh})
	if err != nil {
		return ResponseEnvelope{}, err
	}

	data := map[string]any{
		"board_id": in.BoardID,
		"sprints":  history.Ordered(),
	}
	env := WrapResponse(data)
	if len(history.Order) == 0 {
		env.Warnings = append(env.Warnings, "The board has no started sprints.")
	}
	if s.chartsEnabled() && len(history.Order) > 0 {
		env.Chart = visuals.GenerateVelocityChart(history)
	}
	return env, nil
}

func (s *Server) handleDashboard(ctx context.Context, in DashboardInput) (ResponseEnvelope, error) {
	var queries []fetcher.Query
	for _, q := range in.Queries {
		queries = append(queries, q.query())
	}
	if len(queries) == 0 && s.cfg != nil {
		for _, jql := range s.cfg.RefreshJQL {
			queries = append(queries, fetcher.Query{JQL: jql})
		}
	}

	d, err := s.analyzer.Dashboard(ctx, queries, in.ForceRefresh)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return WrapResponse(d), nil
}

func (in QueryInput) query() fetcher.Query {
	q := fetcher.Query{JQL: in.JQL, FilterID: in.FilterID, Force: in.ForceRefresh}
	if in.MaxAgeMinutes > 0 {
		q.TTL = time.Duration(in.MaxAgeMinutes) * time.Minute
	}
	return q
}

func (s *Server) chartsEnabled() bool {
	return s.cfg != nil && s.cfg.EnableMermaidCharts
}
