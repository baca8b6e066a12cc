package stats

import (
	"time"

	"eng-metrics/internal/jira"
)

const day = 24 * time.Hour

// pointCeilingDays maps story points to the expected days in progress.
var pointCeilingDays = map[int]int{
	1: 1,
	2: 2,
	3: 3,
	4: 5,
	5: 6,
	6: 7,
	7: 8,
	8: 10,
}

const defaultCeilingDays = 10

// Cycle-time statuses, compared case-insensitively.
const (
	StatusInProgress    = "in progress"
	StatusBlocked       = "blocked"
	StatusQualityReview = "quality review"
)

// CycleLimits holds the fixed limits of the non-points statuses.
type CycleLimits struct {
	Blocked       time.Duration
	QualityReview time.Duration
}

// DefaultCycleLimits returns 3 days blocked and 2 days in quality review.
func DefaultCycleLimits() CycleLimits {
	return CycleLimits{
		Blocked:       3 * day,
		QualityReview: 2 * day,
	}
}

// PointsCeiling returns the in-progress limit for a points estimate.
// Non-integral or out-of-table estimates get the 10 day ceiling.
func PointsCeiling(points float64) time.Duration {
	if p := int(points); float64(p) == points {
		if days, ok := pointCeilingDays[p]; ok {
			return time.Duration(days) * day
		}
	}
	return defaultCeilingDays * day
}

// Violation is a ticket that stayed in its current status past the limit.
type Violation struct {
	Key          string        `json:"key"`
	Summary      string        `json:"summary"`
	Status       string        `json:"status"`
	Points       float64       `json:"points"`
	TimeInStatus time.Duration `json:"time_in_status"`
	Limit        time.Duration `json:"limit"`
	Overage      time.Duration `json:"overage"`
}

// CycleTimeEvaluator flags tickets exceeding their cycle-time limit.
type CycleTimeEvaluator struct {
	limits CycleLimits
	recon  *Reconstructor
}

// NewCycleTimeEvaluator creates an evaluator. Zero limits fall back to the
// defaults.
func NewCycleTimeEvaluator(limits CycleLimits, recon *Reconstructor) *CycleTimeEvaluator {
	def := DefaultCycleLimits()
	if limits.Blocked <= 0 {
		limits.Blocked = def.Blocked
	}
	if limits.QualityReview <= 0 {
		limits.QualityReview = def.QualityReview
	}
	if recon == nil {
		recon = NewReconstructor(nil)
	}
	return &CycleTimeEvaluator{limits: limits, recon: recon}
}

// Limit returns the limit for status, and false for statuses that are not
// tracked.
func (e *CycleTimeEvaluator) Limit(status string, points float64) (time.Duration, bool) {
	switch normalize(status) {
	case StatusInProgress:
		return PointsCeiling(points), true
	case StatusBlocked:
		return e.limits.Blocked, true
	case StatusQualityReview:
		return e.limits.QualityReview, true
	default:
		return 0, false
	}
}

// Evaluate checks issue against the limit of its current status.
func (e *CycleTimeEvaluator) Evaluate(issue jira.Issue) (Violation, bool) {
	limit, tracked := e.Limit(issue.Status, issue.Points)
	if !tracked {
		return Violation{}, false
	}

	iv := e.recon.TimeInStatus(issue, issue.Status)
	if iv.Total <= limit {
		return Violation{}, false
	}

	return Violation{
		Key:          issue.Key,
		Summary:      issue.Summary,
		Status:       issue.Status,
		Points:       issue.Points,
		TimeInStatus: iv.Total,
		Limit:        limit,
		Overage:      iv.Total - limit,
	}, true
}

// EvaluateAll returns the violations among issues keyed by ticket key.
func (e *CycleTimeEvaluator) EvaluateAll(issues []jira.Issue) map[string]Violation {
	out := make(map[string]Violation)
	for _, issue := range issues {
		if v, ok := e.Evaluate(issue); ok {
			out[issue.Key] = v
		}
	}
	return out
}
