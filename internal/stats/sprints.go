package stats

import (
	"fmt"
	"sort"
	"time"

	"eng-metrics/internal/jira"
)

// SprintCounter names one of the per-sprint counters.
type SprintCounter string

const (
	CounterCompleted    SprintCounter = "completed"
	CounterNotCompleted SprintCounter = "not_completed"
	CounterPunted       SprintCounter = "punted"
	CounterAdded        SprintCounter = "added"
)

// SprintCounters lists every counter in reporting order.
var SprintCounters = []SprintCounter{CounterCompleted, CounterNotCompleted, CounterPunted, CounterAdded}

// SprintSnapshot holds the raw counters of one sprint report.
type SprintSnapshot struct {
	SprintKey string                    `json:"sprint_key"`
	BoardID   int                       `json:"board_id"`
	SprintID  int                       `json:"sprint_id"`
	Name      string                    `json:"name"`
	State     string                    `json:"state"`
	EndDate   *time.Time                `json:"end_date,omitempty"`
	Points    map[SprintCounter]float64 `json:"points"`
	Issues    map[SprintCounter]int     `json:"issues"`
}

// SprintKey is the unique key of a sprint snapshot.
func SprintKey(boardID, sprintID int) string {
	return fmt.Sprintf("%d:%d", boardID, sprintID)
}

// NewSprintSnapshot derives raw counters from a sprint report. Points added
// during the sprint are not reported upstream; they are summed over the
// added keys found in the report's issue lists.
func NewSprintSnapshot(report jira.SprintReport) SprintSnapshot {
	snap := SprintSnapshot{
		SprintKey: SprintKey(report.BoardID, report.Sprint.ID),
		BoardID:   report.BoardID,
		SprintID:  report.Sprint.ID,
		Name:      report.Sprint.Name,
		State:     report.Sprint.State,
		EndDate:   report.Sprint.CompleteDate,
		Points:    make(map[SprintCounter]float64, len(SprintCounters)),
		Issues:    make(map[SprintCounter]int, len(SprintCounters)),
	}
	if snap.EndDate == nil {
		snap.EndDate = report.Sprint.EndDate
	}

	pointsByKey := make(map[string]float64)
	count := func(counter SprintCounter, issues []jira.ReportIssue) {
		for _, itm := range issues {
			snap.Points[counter] += float64(itm.Points)
			pointsByKey[itm.Key] = float64(itm.Points)
		}
		snap.Issues[counter] = len(issues)
	}
	count(CounterCompleted, report.Completed)
	count(CounterNotCompleted, report.NotCompleted)
	count(CounterPunted, report.Punted)

	for _, key := range report.AddedDuringSprint {
		snap.Points[CounterAdded] += pointsByKey[key]
	}
	snap.Issues[CounterAdded] = len(report.AddedDuringSprint)
	return snap
}

// SortSnapshotsByEnd orders snapshots ascending by end date; snapshots
// without one (not yet ended) sort last, ties by sprint ID.
func SortSnapshotsByEnd(snapshots []SprintSnapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		a, b := snapshots[i].EndDate, snapshots[j].EndDate
		switch {
		case a == nil && b == nil:
			return snapshots[i].SprintID < snapshots[j].SprintID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return snapshots[i].SprintID < snapshots[j].SprintID
		}
	})
}

// Rollup is a counter value with its running aggregates.
type Rollup struct {
	Actual     float64 `json:"actual"`
	RunningSum float64 `json:"running_sum"`
	RunningAvg float64 `json:"running_avg"`
}

// SprintRollup is one sprint of a SprintHistory.
type SprintRollup struct {
	SprintID int                      `json:"sprint_id"`
	Name     string                   `json:"name"`
	EndDate  *time.Time               `json:"end_date,omitempty"`
	Points   map[SprintCounter]Rollup `json:"points"`
	Issues   map[SprintCounter]Rollup `json:"issues"`
}

// SprintHistory keeps the fold order alongside random access by sprint ID.
type SprintHistory struct {
	Order   []int                 `json:"order"`
	Sprints map[int]*SprintRollup `json:"sprints"`
}

// Ordered returns the rollups in fold order.
func (h SprintHistory) Ordered() []*SprintRollup {
	out := make([]*SprintRollup, 0, len(h.Order))
	for _, id := range h.Order {
		out = append(out, h.Sprints[id])
	}
	return out
}

// AggregateSprintHistory folds snapshots, given ascending by end date, into
// running sums and averages for every points and issue counter.
func AggregateSprintHistory(snapshots []SprintSnapshot) SprintHistory {
	h := SprintHistory{
		Order:   make([]int, 0, len(snapshots)),
		Sprints: make(map[int]*SprintRollup, len(snapshots)),
	}
	pointSums := make(map[SprintCounter]float64, len(SprintCounters))
	issueSums := make(map[SprintCounter]float64, len(SprintCounters))

	for i, snap := range snapshots {
		n := float64(i + 1)
		rollup := &SprintRollup{
			SprintID: snap.SprintID,
			Name:     snap.Name,
			EndDate:  snap.EndDate,
			Points:   make(map[SprintCounter]Rollup, len(SprintCounters)),
			Issues:   make(map[SprintCounter]Rollup, len(SprintCounters)),
		}

		for _, c := range SprintCounters {
			pts := snap.Points[c]
			pointSums[c] += pts
			rollup.Points[c] = Rollup{Actual: pts, RunningSum: pointSums[c], RunningAvg: pointSums[c] / n}

			cnt := float64(snap.Issues[c])
			issueSums[c] += cnt
			rollup.Issues[c] = Rollup{Actual: cnt, RunningSum: issueSums[c], RunningAvg: issueSums[c] / n}
		}

		h.Order = append(h.Order, snap.SprintID)
		h.Sprints[snap.SprintID] = rollup
	}
	return h
}
