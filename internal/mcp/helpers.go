package mcp

import (
	"math"
	"time"

	"eng-metrics/internal/errdefs"
	"eng-metrics/internal/stats"

	"github.com/goccy/go-json"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ResponseEnvelope is the JSON body of every successful tool result.
type ResponseEnvelope struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
	// Chart is a mermaid diagram, only set when charts are enabled.
	Chart string `json:"chart,omitempty"`
}

// WrapResponse builds an envelope around data.
func WrapResponse(data any, warnings ...string) ResponseEnvelope {
	return ResponseEnvelope{Data: data, Warnings: warnings}
}

func formatResult(data any) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return `{"error":"failed to encode result"}`
	}
	return string(out)
}

func errorResult(err error) *sdk.CallToolResult {
	prefix := "Tool failed"
	switch {
	case errdefs.IsConfiguration(err):
		prefix = "Invalid request"
	case errdefs.IsNotFound(err):
		prefix = "Not found"
	case errdefs.IsUpstreamUnavailable(err):
		prefix = "Jira is unavailable, try again later"
	}
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{Text: prefix + ": " + err.Error()}},
	}
}

type violationView struct {
	Key          string  `json:"key"`
	Summary      string  `json:"summary"`
	Status       string  `json:"status"`
	Points       float64 `json:"points"`
	DaysInStatus float64 `json:"days_in_status"`
	LimitDays    float64 `json:"limit_days"`
	OverageDays  float64 `json:"overage_days"`
}

func presentViolations(violations []stats.Violation) []violationView {
	out := make([]violationView, 0, len(violations))
	for _, v := range violations {
		out = append(out, violationView{
			Key:          v.Key,
			Summary:      v.Summary,
			Status:       v.Status,
			Points:       v.Points,
			DaysInStatus: days(v.TimeInStatus),
			LimitDays:    days(v.Limit),
			OverageDays:  days(v.Overage),
		})
	}
	return out
}

// days rounds d to one decimal day.
func days(d time.Duration) float64 {
	return math.Round(d.Hours()/24*10) / 10
}
