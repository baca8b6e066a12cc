package jira

import (
	"context"
	"strings"
	"time"
)

// Issue is the minimal ticket shape the metrics engine needs.
type Issue struct {
	Key        string        `json:"key"`
	Summary    string        `json:"summary"`
	IssueType  string        `json:"issue_type"`
	Status     string        `json:"status"`
	Resolution string        `json:"resolution"`
	Points     float64       `json:"points"`
	Assignee   string        `json:"assignee"`
	Created    time.Time     `json:"created"`
	Changelog  []ChangeEntry `json:"changelog,omitempty"`
}

// ChangeEntry is a single field change flattened out of a changelog history.
// ID is the history ID, which orders entries more reliably than Created.
type ChangeEntry struct {
	ID      int64     `json:"id"`
	Created time.Time `json:"created"`
	Field   string    `json:"field"`
	From    string    `json:"from"`
	To      string    `json:"to"`
}

// Sprint is a board sprint as listed by the agile API.
type Sprint struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	State        string     `json:"state"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	CompleteDate *time.Time `json:"complete_date,omitempty"`
}

// Active reports whether the sprint is still running.
func (s Sprint) Active() bool {
	return strings.EqualFold(s.State, "active")
}

// ReportIssue is an issue reference inside a sprint report.
type ReportIssue struct {
	Key    string   `json:"key"`
	Points Estimate `json:"points"`
}

// SprintReport is the end-of-sprint breakdown for one sprint on a board.
type SprintReport struct {
	BoardID           int           `json:"board_id"`
	Sprint            Sprint        `json:"sprint"`
	Completed         []ReportIssue `json:"completed"`
	NotCompleted      []ReportIssue `json:"not_completed"`
	Punted            []ReportIssue `json:"punted"`
	AddedDuringSprint []string      `json:"added_during_sprint"`
}

// Client is the interface for interacting with Jira.
type Client interface {
	// SearchIssues runs a JQL search; expandChangelog requests histories.
	SearchIssues(ctx context.Context, jql string, startAt, maxResults int, expandChangelog bool) (*SearchResponse, error)
	// FieldID resolves a friendly field name (e.g. "Story Points") to its internal ID.
	FieldID(ctx context.Context, friendlyName string) (string, error)
	// GetFilter returns the saved filter with the given ID.
	GetFilter(ctx context.Context, id string) (*Filter, error)
	GetSprints(ctx context.Context, boardID int) ([]Sprint, error)
	GetSprintReport(ctx context.Context, boardID, sprintID int) (*SprintReport, error)
}

// Filter is a saved JQL filter.
type Filter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	JQL  string `json:"jql"`
}

// Config holds the authentication and connection settings for Jira.
type Config struct {
	BaseURL string

	// Personal Access Token, preferred over cookies
	Token string

	// Data Center Cookies
	XsrfToken  string
	SessionID  string
	RememberMe string

	// Load Balancer Cookies
	GCILB string
	GCLB  string

	// Performance Settings
	RequestDelay time.Duration
	Timeout      time.Duration
}

// NewClient creates a new Jira client based on the provided configuration.
func NewClient(cfg Config) Client {
	return NewDataCenterClient(cfg)
}
