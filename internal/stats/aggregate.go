package stats

import (
	"sort"
	"time"

	"eng-metrics/internal/jira"
)

// Outcome is the bucket a ticket's points are counted in.
type Outcome string

const (
	OutcomeComplete   Outcome = "complete"
	OutcomeIncomplete Outcome = "incomplete"
	OutcomeAbandoned  Outcome = "abandoned"
)

// Unassigned is the developer bucket for tickets without an assignee.
const Unassigned = "unassigned"

// DeveloperStats is the per-assignee slice of an AggregateResult.
type DeveloperStats struct {
	Complete        float64  `json:"complete"`
	Incomplete      float64  `json:"incomplete"`
	Abandoned       float64  `json:"abandoned"`
	TotalPoints     float64  `json:"total_points"`
	PercentComplete int      `json:"percent_complete"`
	Issues          []string `json:"issues"`
}

// AggregateResult is the point breakdown of a ticket collection.
// TotalPoints always equals Complete + Incomplete + Abandoned, globally and
// per developer.
type AggregateResult struct {
	Complete        float64                    `json:"complete"`
	Incomplete      float64                    `json:"incomplete"`
	Abandoned       float64                    `json:"abandoned"`
	TotalPoints     float64                    `json:"total_points"`
	PercentComplete int                        `json:"percent_complete"`
	Unpointed       int                        `json:"unpointed"`
	IssueCount      int                        `json:"issue_count"`
	StatusCounts    map[string]int             `json:"status_counts"`
	Developers      map[string]*DeveloperStats `json:"developer_stats"`
}

// IssueTiming is the per-ticket breakdown of a TimingResult, in seconds.
type IssueTiming struct {
	Statuses     map[string]float64 `json:"statuses"`
	TotalSeconds float64            `json:"total_in_seconds"`
}

// TimingResult sums time spent in the in-progress statuses.
type TimingResult struct {
	Issues   map[string]IssueTiming `json:"issues"`
	Statuses map[string]float64     `json:"statuses"`
	// MedianSeconds is the median per status over tickets that visited it.
	MedianSeconds map[string]float64 `json:"median_seconds"`
}

// StatusResult counts tickets per status.
type StatusResult struct {
	Counts               map[string]int `json:"counts"`
	RemainingTicketCount int            `json:"remaining_ticket_count"`
	Total                int            `json:"total"`
}

// Aggregator computes metrics over ticket collections. It holds no state
// between calls and is safe for concurrent use.
type Aggregator struct {
	rules WorkflowRules
	recon *Reconstructor
	cycle *CycleTimeEvaluator
}

// NewAggregator creates an Aggregator. now drives open-interval closing; nil
// means time.Now.
func NewAggregator(rules WorkflowRules, limits CycleLimits, now func() time.Time) *Aggregator {
	recon := NewReconstructor(now)
	return &Aggregator{
		rules: rules,
		recon: recon,
		cycle: NewCycleTimeEvaluator(limits, recon),
	}
}

// Rules returns the workflow rules the aggregator classifies with.
func (a *Aggregator) Rules() WorkflowRules {
	return a.rules
}

// Classify places a ticket in exactly one outcome. Abandonment wins over
// resolution.
func (a *Aggregator) Classify(issue jira.Issue) Outcome {
	switch {
	case a.rules.IsAbandoned(issue.Status, issue.Resolution):
		return OutcomeAbandoned
	case a.rules.IsResolved(issue.Status, issue.Resolution):
		return OutcomeComplete
	default:
		return OutcomeIncomplete
	}
}

// PointAnalysis buckets points by outcome, globally and per assignee.
func (a *Aggregator) PointAnalysis(issues []jira.Issue) AggregateResult {
	res := AggregateResult{
		IssueCount:   len(issues),
		StatusCounts: make(map[string]int),
		Developers:   make(map[string]*DeveloperStats),
	}

	for _, issue := range issues {
		assignee := issue.Assignee
		if assignee == "" {
			assignee = Unassigned
		}
		dev, ok := res.Developers[assignee]
		if !ok {
			dev = &DeveloperStats{Issues: []string{}}
			res.Developers[assignee] = dev
		}
		dev.Issues = append(dev.Issues, issue.Key)
		res.StatusCounts[issue.Status]++

		outcome := a.Classify(issue)
		switch outcome {
		case OutcomeAbandoned:
			res.Abandoned += issue.Points
			dev.Abandoned += issue.Points
		case OutcomeComplete:
			res.Complete += issue.Points
			dev.Complete += issue.Points
		default:
			res.Incomplete += issue.Points
			dev.Incomplete += issue.Points
		}

		if issue.Points == 0 && outcome != OutcomeAbandoned {
			res.Unpointed++
		}
	}

	res.TotalPoints = res.Complete + res.Incomplete + res.Abandoned
	res.PercentComplete = PercentOf(res.Complete, res.TotalPoints)
	for _, dev := range res.Developers {
		dev.TotalPoints = dev.Complete + dev.Incomplete + dev.Abandoned
		dev.PercentComplete = PercentOf(dev.Complete, dev.TotalPoints)
	}
	return res
}

// TimingAnalysis reconstructs the in-progress statuses of every ticket,
// sorting each changelog once.
func (a *Aggregator) TimingAnalysis(issues []jira.Issue) TimingResult {
	statuses := a.rules.InProgressStatuses()
	res := TimingResult{
		Issues:        make(map[string]IssueTiming, len(issues)),
		Statuses:      make(map[string]float64, len(statuses)),
		MedianSeconds: make(map[string]float64, len(statuses)),
	}
	samples := make(map[string][]float64, len(statuses))

	for _, issue := range issues {
		timing := IssueTiming{Statuses: make(map[string]float64, len(statuses))}
		sorted := SortChangelog(issue.Changelog)

		for _, status := range statuses {
			var secs float64
			if len(sorted) > 0 {
				secs = a.recon.TimeInStatusSorted(sorted, status).Total.Seconds()
			}
			timing.Statuses[status] = secs
			timing.TotalSeconds += secs
			res.Statuses[status] += secs
			if secs > 0 {
				samples[status] = append(samples[status], secs)
			}
		}
		res.Issues[issue.Key] = timing
	}

	for _, status := range statuses {
		res.MedianSeconds[status] = CalculateMedianContinuous(samples[status])
	}
	return res
}

// StatusAnalysis counts tickets per status and those not yet resolved.
func (a *Aggregator) StatusAnalysis(issues []jira.Issue) StatusResult {
	res := StatusResult{Counts: make(map[string]int), Total: len(issues)}
	for _, issue := range issues {
		res.Counts[issue.Status]++
		if !a.rules.IsResolved(issue.Status, issue.Resolution) {
			res.RemainingTicketCount++
		}
	}
	return res
}

// CycleTimeAnalysis returns the cycle-time violations keyed by ticket key.
func (a *Aggregator) CycleTimeAnalysis(issues []jira.Issue) map[string]Violation {
	return a.cycle.EvaluateAll(issues)
}

// SortedViolations orders violations by descending overage, then key.
func SortedViolations(violations map[string]Violation) []Violation {
	out := make([]Violation, 0, len(violations))
	for _, v := range violations {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Overage != out[j].Overage {
			return out[i].Overage > out[j].Overage
		}
		return out[i].Key < out[j].Key
	})
	return out
}
