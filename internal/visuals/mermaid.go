package visuals

import (
	"fmt"
	"math"
	"strings"

	"eng-metrics/internal/stats"
)

// GenerateVelocityChart creates a Mermaid xychart-beta of completed points per
// sprint (bars) against committed points and the running completed average.
func GenerateVelocityChart(history stats.SprintHistory) string {
	rollups := history.Ordered()
	if len(rollups) == 0 {
		return ""
	}

	var labels, completed, committed, averages []string
	maxY := 0.0

	for _, r := range rollups {
		done := r.Points[stats.CounterCompleted].Actual
		commit := done + r.Points[stats.CounterNotCompleted].Actual + r.Points[stats.CounterPunted].Actual

		labels = append(labels, fmt.Sprintf("%q", sprintLabel(r)))
		completed = append(completed, fmt.Sprintf("%.1f", done))
		committed = append(committed, fmt.Sprintf("%.1f", commit))
		averages = append(averages, fmt.Sprintf("%.1f", r.Points[stats.CounterCompleted].RunningAvg))
		maxY = math.Max(maxY, commit)
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Sprint Velocity\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Story Points\" 0 --> %d\n", int(math.Ceil(math.Max(1, maxY*1.2)))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(completed, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(committed, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(averages, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateStatusTimeChart creates a Mermaid bar chart of total hours spent in
// each tracked status, in the given status order.
func GenerateStatusTimeChart(timing stats.TimingResult, statuses []string) string {
	if len(statuses) == 0 || len(timing.Issues) == 0 {
		return ""
	}

	var labels, values []string
	maxVal := 0.0
	for _, s := range statuses {
		hours := timing.Statuses[s] / 3600
		labels = append(labels, fmt.Sprintf("%q", s))
		values = append(values, fmt.Sprintf("%.1f", hours))
		maxVal = math.Max(maxVal, hours)
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Time In Status\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Hours\" 0 --> %d\n", int(math.Ceil(math.Max(1, maxVal*1.2)))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

func sprintLabel(r *stats.SprintRollup) string {
	if r.Name != "" {
		return strings.ReplaceAll(r.Name, "\"", "'")
	}
	return fmt.Sprintf("#%d", r.SprintID)
}
