package fetcher

import (
	"fmt"
	"strings"
	"time"

	"eng-metrics/internal/cache"
	"eng-metrics/internal/errdefs"
	"eng-metrics/internal/stats"
)

// Collections and storage types of the cached models.
const (
	collectionAnalysis  = "analysis"
	collectionSprints   = "sprint_reports"
	collectionDashboard = "dashboard"

	typePoints    = "points"
	typeTiming    = "timing"
	typeStatuses  = "statuses"
	typeCycleTime = "cycle_time"

	fieldQueryKey = "query_key"
	fieldBoardID  = "board_id"
)

// Query selects the tickets an analysis runs over: either a JQL string or a
// saved filter ID.
type Query struct {
	JQL      string `json:"jql,omitempty"`
	FilterID string `json:"filter_id,omitempty"`
	// Force bypasses the cache and refreshes it.
	Force bool `json:"-"`
	// TTL overrides the model's freshness window when positive.
	TTL time.Duration `json:"-"`
}

// Key is the cache key of the query.
func (q Query) Key() string {
	if q.FilterID != "" {
		return "filter:" + strings.TrimSpace(q.FilterID)
	}
	return "jql:" + strings.Join(strings.Fields(q.JQL), " ")
}

func (q Query) validate() error {
	hasJQL := strings.TrimSpace(q.JQL) != ""
	hasFilter := strings.TrimSpace(q.FilterID) != ""
	if hasJQL == hasFilter {
		return fmt.Errorf("query needs exactly one of jql or filter id: %w", errdefs.ErrConfiguration)
	}
	return nil
}

// PointsRecord is the cached point analysis of one query.
type PointsRecord struct {
	QueryKey string                `json:"query_key"`
	JQL      string                `json:"jql"`
	Result   stats.AggregateResult `json:"result"`
}

// TimingRecord is the cached time-in-status analysis of one query.
type TimingRecord struct {
	QueryKey string             `json:"query_key"`
	JQL      string             `json:"jql"`
	Result   stats.TimingResult `json:"result"`
}

// StatusRecord is the cached status breakdown of one query.
type StatusRecord struct {
	QueryKey string             `json:"query_key"`
	JQL      string             `json:"jql"`
	Result   stats.StatusResult `json:"result"`
}

// CycleTimeRecord is the cached list of cycle-time violations of one query.
type CycleTimeRecord struct {
	QueryKey   string            `json:"query_key"`
	JQL        string            `json:"jql"`
	Violations []stats.Violation `json:"violations"`
}

// DashboardEntry summarises one query on the dashboard.
type DashboardEntry struct {
	QueryKey         string  `json:"query_key"`
	TotalPoints      float64 `json:"total_points"`
	PercentComplete  int     `json:"percent_complete"`
	Unpointed        int     `json:"unpointed"`
	RemainingTickets int     `json:"remaining_tickets"`
	Violations       int     `json:"violations"`
}

// Dashboard is the latest-only summary over the configured queries.
type Dashboard struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Entries     []DashboardEntry `json:"entries"`
}

func analysisSpec(storageType string, ttl time.Duration) cache.ModelSpec {
	return cache.ModelSpec{
		Name:        collectionAnalysis,
		TTL:         ttl,
		UniqueKey:   fieldQueryKey,
		StorageType: storageType,
	}
}

func sprintSpec(ttl time.Duration) cache.ModelSpec {
	return cache.ModelSpec{
		Name:           collectionSprints,
		TTL:            ttl,
		UniqueKey:      "sprint_key",
		RequiredFields: []string{fieldBoardID},
	}
}

func dashboardSpec(ttl time.Duration) cache.ModelSpec {
	return cache.ModelSpec{
		Name:           collectionDashboard,
		TTL:            ttl,
		ClearBeforeAdd: true,
	}
}
