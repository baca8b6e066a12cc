package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"eng-metrics/internal/errdefs"

	"github.com/goccy/go-json"
)

func TestEstimate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Estimate
	}{
		{`5`, 5},
		{`2.5`, 2.5},
		{`"8"`, 8},
		{`null`, 0},
		{`"null"`, 0},
		{`""`, 0},
		{`"n/a"`, 0},
	}

	for _, tt := range tests {
		var e Estimate
		if err := json.Unmarshal([]byte(tt.in), &e); err != nil {
			t.Errorf("Unmarshal(%s) returned error: %v", tt.in, err)
			continue
		}
		if e != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, e, tt.want)
		}
	}
}

const issuePayload = `{
	"key": "ENG-7",
	"fields": {
		"summary": "Rework login",
		"issuetype": {"name": "Story"},
		"status": {"id": "3", "name": "In Progress"},
		"resolution": null,
		"assignee": {"name": "jdoe", "displayName": "Jane Doe"},
		"created": "2025-01-06T09:00:00.000+0000",
		"customfield_10002": 5
	},
	"changelog": {
		"histories": [
			{"id": "102", "created": "2025-01-06T11:00:00.000+0000", "items": [
				{"field": "status", "fromString": "Open", "toString": "In Progress"},
				{"field": "assignee", "fromString": "", "toString": "jdoe"}
			]},
			{"id": "101", "created": "2025-01-06T10:00:00.000+0000", "items": [
				{"field": "summary", "fromString": "Login", "toString": "Rework login"}
			]},
			{"id": "103", "created": "not-a-date", "items": [
				{"field": "status", "fromString": "In Progress", "toString": "Done"}
			]}
		]
	}
}`

func TestMapIssue(t *testing.T) {
	var dto IssueDTO
	if err := json.Unmarshal([]byte(issuePayload), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}

	issue := MapIssue(dto, "customfield_10002")

	if issue.Key != "ENG-7" || issue.Status != "In Progress" || issue.Summary != "Rework login" {
		t.Errorf("unexpected header fields: %+v", issue)
	}
	if issue.Resolution != "" {
		t.Errorf("expected empty resolution, got %q", issue.Resolution)
	}
	if issue.Assignee != "jdoe" {
		t.Errorf("expected assignee jdoe, got %q", issue.Assignee)
	}
	if issue.Points != 5 {
		t.Errorf("expected 5 points, got %v", issue.Points)
	}
	if want := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC); !issue.Created.Equal(want) {
		t.Errorf("expected created %v, got %v", want, issue.Created)
	}

	if len(issue.Changelog) != 3 {
		t.Fatalf("expected 3 entries (invalid history dropped), got %d", len(issue.Changelog))
	}
	if issue.Changelog[0].ID != 102 || issue.Changelog[0].Field != "status" || issue.Changelog[0].To != "In Progress" {
		t.Errorf("unexpected first entry: %+v", issue.Changelog[0])
	}
}

func TestMapIssue_UnknownPointsField(t *testing.T) {
	var dto IssueDTO
	_ = json.Unmarshal([]byte(issuePayload), &dto)

	if got := MapIssue(dto, "customfield_99999").Points; got != 0 {
		t.Errorf("expected 0 points for absent field, got %v", got)
	}
	if got := MapIssue(dto, "").Points; got != 0 {
		t.Errorf("expected 0 points without a field id, got %v", got)
	}
}

func TestSessionCache_Expiry(t *testing.T) {
	s := NewSessionCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set("k", "v", time.Minute)
	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := s.Get("k"); ok {
		t.Error("expected entry to expire")
	}
	if s.Len() != 0 {
		t.Error("expected expired entry to be swept")
	}
}

func TestSessionCache_SetSweepsExpired(t *testing.T) {
	s := NewSessionCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := range 10 {
		s.Set(fmt.Sprintf("filter:%d", i), i, 5*time.Minute)
	}
	now = now.Add(10 * time.Minute)
	s.Set("filter:new", "x", 5*time.Minute)

	if s.Len() != 1 {
		t.Errorf("expected unread expired keys to be swept, got %d entries", s.Len())
	}
}

func TestSessionCache_NilIsSafe(t *testing.T) {
	s := SessionFrom(context.Background())
	if s != nil {
		t.Fatal("expected no session on a bare context")
	}
	s.Set("k", 1, time.Minute)
	if _, ok := s.Get("k"); ok {
		t.Error("nil session must never hit")
	}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDataCenterClient(Config{BaseURL: srv.URL, Token: "secret"})
}

func TestDCClient_FieldIDMemoizedPerSession(t *testing.T) {
	var calls atomic.Int32
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/field" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		calls.Add(1)
		fmt.Fprint(w, `[{"id":"summary","name":"Summary"},{"id":"customfield_10002","name":"Story Points","custom":true}]`)
	})

	ctx := WithSession(context.Background(), NewSessionCache())
	for range 3 {
		id, err := client.FieldID(ctx, "story points")
		if err != nil {
			t.Fatalf("FieldID failed: %v", err)
		}
		if id != "customfield_10002" {
			t.Errorf("expected customfield_10002, got %q", id)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single field list request, got %d", calls.Load())
	}

	if _, err := client.FieldID(ctx, "Sprint Goal"); !errdefs.IsNotFound(err) {
		t.Errorf("expected not found for unknown field, got %v", err)
	}
}

func TestDCClient_ErrorMapping(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/2/filter/404":
			w.WriteHeader(http.StatusNotFound)
		case "/rest/api/2/filter/500":
			w.WriteHeader(http.StatusBadGateway)
		default:
			fmt.Fprint(w, `{"id":"1","name":"Team","jql":"project = ENG"}`)
		}
	})
	ctx := context.Background()

	if _, err := client.GetFilter(ctx, "404"); !errdefs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := client.GetFilter(ctx, "500"); !errdefs.IsUpstreamUnavailable(err) {
		t.Errorf("expected upstream unavailable, got %v", err)
	}

	f, err := client.GetFilter(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if f.JQL != "project = ENG" {
		t.Errorf("unexpected filter: %+v", f)
	}
}

func TestDCClient_BreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for range 8 {
		_, err := client.GetFilter(context.Background(), "1")
		if !errdefs.IsUpstreamUnavailable(err) {
			t.Fatalf("expected upstream unavailable, got %v", err)
		}
	}
	if calls.Load() != 5 {
		t.Errorf("expected breaker to stop calls after 5 failures, got %d", calls.Load())
	}
}

func TestDCClient_SearchIssues(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("jql") != "project = ENG" || q.Get("expand") != "changelog" || q.Get("startAt") != "50" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprintf(w, `{"startAt":50,"maxResults":50,"total":51,"issues":[%s]}`, issuePayload)
	})

	resp, err := client.SearchIssues(context.Background(), "project = ENG", 50, 50, true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 51 || len(resp.Issues) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, ok := resp.Issues[0].Fields.Custom["customfield_10002"]; !ok {
		t.Error("expected custom field to be retained")
	}
}

func TestDCClient_GetSprintsPaginates(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") == "0" {
			fmt.Fprint(w, `{"isLast":false,"values":[{"id":1,"name":"S1","state":"closed","startDate":"2025-01-06T09:00:00.000Z","completeDate":"2025-01-20T09:00:00.000Z"}]}`)
			return
		}
		fmt.Fprint(w, `{"isLast":true,"values":[{"id":2,"name":"S2","state":"active"}]}`)
	})

	sprints, err := client.GetSprints(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(sprints) != 2 {
		t.Fatalf("expected 2 sprints, got %d", len(sprints))
	}
	if sprints[0].CompleteDate == nil || sprints[0].Active() {
		t.Errorf("unexpected first sprint: %+v", sprints[0])
	}
	if !sprints[1].Active() {
		t.Error("expected second sprint to be active")
	}
}

func TestDCClient_GetSprintReport(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rapidViewId") != "42" || r.URL.Query().Get("sprintId") != "7" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{
			"contents": {
				"completedIssues": [{"key":"ENG-1","estimateStatistic":{"statFieldValue":{"value":3}}}],
				"issuesNotCompletedInCurrentSprint": [{"key":"ENG-2","estimateStatistic":{"statFieldValue":{"value":"null"}}}],
				"puntedIssues": [],
				"issueKeysAddedDuringSprint": {"ENG-2": true, "ENG-9": false}
			},
			"sprint": {"id":7,"name":"Sprint 7","state":"CLOSED","isoEndDate":"2025-01-20T09:00:00Z"}
		}`)
	})

	report, err := client.GetSprintReport(context.Background(), 42, 7)
	if err != nil {
		t.Fatal(err)
	}
	if report.Sprint.ID != 7 || report.BoardID != 42 {
		t.Errorf("unexpected header: %+v", report)
	}
	if len(report.Completed) != 1 || report.Completed[0].Points != 3 {
		t.Errorf("unexpected completed issues: %+v", report.Completed)
	}
	if report.NotCompleted[0].Points != 0 {
		t.Errorf("expected null estimate to decode to 0, got %v", report.NotCompleted[0].Points)
	}
	sort.Strings(report.AddedDuringSprint)
	if len(report.AddedDuringSprint) != 1 || report.AddedDuringSprint[0] != "ENG-2" {
		t.Errorf("unexpected added keys: %v", report.AddedDuringSprint)
	}
	if report.Sprint.EndDate == nil {
		t.Error("expected end date to parse")
	}
}
