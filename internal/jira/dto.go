package jira

import (
	"bytes"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// SearchResponse is the top-level container for Jira search results.
type SearchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []IssueDTO `json:"issues"`
}

// IssueDTO represents a single issue in the Jira search response.
type IssueDTO struct {
	Key       string        `json:"key"`
	Fields    FieldsDTO     `json:"fields"`
	Changelog *ChangelogDTO `json:"changelog,omitempty"`
}

// FieldsDTO contains the fields we care about. Custom fields keep their raw
// value in Custom, keyed by internal ID, since their IDs differ per instance.
type FieldsDTO struct {
	Summary   string `json:"summary"`
	IssueType struct {
		Name    string `json:"name"`
		Subtask bool   `json:"subtask"`
	} `json:"issuetype"`
	Status struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"status"`
	Resolution *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"resolution"`
	Assignee *struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	Created string `json:"created"`

	Custom map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps every customfield_* value.
func (f *FieldsDTO) UnmarshalJSON(data []byte) error {
	type plain FieldsDTO
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	known.Custom = make(map[string]json.RawMessage)
	for k, v := range all {
		if len(k) > 12 && k[:12] == "customfield_" {
			known.Custom[k] = v
		}
	}

	*f = FieldsDTO(known)
	return nil
}

// ChangelogDTO contains historical transitions.
type ChangelogDTO struct {
	Histories []HistoryDTO `json:"histories"`
}

// HistoryDTO is a single entry in the changelog.
type HistoryDTO struct {
	ID      string    `json:"id"`
	Created string    `json:"created"`
	Items   []ItemDTO `json:"items"`
}

// ItemDTO is a single field change within a history entry.
type ItemDTO struct {
	Field      string `json:"field"`
	ToString   string `json:"toString"`
	FromString string `json:"fromString"`
	To         string `json:"to"`   // ID
	From       string `json:"from"` // ID
}

// FieldDTO is one entry of /rest/api/2/field.
type FieldDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

type sprintListDTO struct {
	IsLast bool        `json:"isLast"`
	Values []sprintDTO `json:"values"`
}

type sprintDTO struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	CompleteDate string `json:"completeDate"`
}

// sprintReportDTO mirrors the greenhopper sprint report payload.
type sprintReportDTO struct {
	Contents struct {
		CompletedIssues                   []reportIssueDTO `json:"completedIssues"`
		IssuesNotCompletedInCurrentSprint []reportIssueDTO `json:"issuesNotCompletedInCurrentSprint"`
		PuntedIssues                      []reportIssueDTO `json:"puntedIssues"`
		IssueKeysAddedDuringSprint        map[string]bool  `json:"issueKeysAddedDuringSprint"`
	} `json:"contents"`
	Sprint struct {
		ID              int    `json:"id"`
		Name            string `json:"name"`
		State           string `json:"state"`
		IsoStartDate    string `json:"isoStartDate"`
		IsoEndDate      string `json:"isoEndDate"`
		IsoCompleteDate string `json:"isoCompleteDate"`
	} `json:"sprint"`
}

type reportIssueDTO struct {
	Key               string `json:"key"`
	EstimateStatistic struct {
		StatFieldValue struct {
			Value Estimate `json:"value"`
		} `json:"statFieldValue"`
	} `json:"estimateStatistic"`
}

type filterDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	JQL  string `json:"jql"`
}

// Estimate is a story point value. Jira reports missing estimates as null,
// empty strings or the literal "null"; all of them decode to zero.
type Estimate float64

func (e *Estimate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*e = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*e = 0
			return nil
		}
		data = []byte(s)
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*e = 0
		return nil
	}
	*e = Estimate(v)
	return nil
}

// ParseTime is a helper for the strict Jira time format.
func ParseTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.000-0700", s)
}

// parseAgileTime accepts both the REST timestamp format and RFC 3339, which
// the agile endpoints use.
func parseAgileTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := ParseTime(s); err == nil {
		return &t
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
