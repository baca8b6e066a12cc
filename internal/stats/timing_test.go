package stats

import (
	"testing"
	"time"

	"eng-metrics/internal/jira"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func status(id int64, at time.Time, from, to string) jira.ChangeEntry {
	return jira.ChangeEntry{ID: id, Created: at, Field: "status", From: from, To: to}
}

func TestTimeInStatus_OpenInProgressResolved(t *testing.T) {
	issue := jira.Issue{
		Key:     "PROJ-1",
		Created: t0,
		Changelog: []jira.ChangeEntry{
			status(1, t0, "", "Open"),
			status(2, t0.Add(time.Hour), "Open", "In Progress"),
			status(3, t0.Add(5*time.Hour), "In Progress", "Resolved"),
		},
	}
	r := NewReconstructor(fixedNow(t0.Add(48 * time.Hour)))

	if got := r.TimeInStatus(issue, "In Progress").Total; got != 4*time.Hour {
		t.Errorf("In Progress: expected 4h, got %v", got)
	}
	if got := r.TimeInStatus(issue, "Open").Total; got != time.Hour {
		t.Errorf("Open: expected 1h, got %v", got)
	}

	// Case-insensitive
	if got := r.TimeInStatus(issue, "in progress").Total; got != 4*time.Hour {
		t.Errorf("in progress: expected 4h, got %v", got)
	}
}

func TestTimeInStatus_SortsByHistoryID(t *testing.T) {
	// Timestamps out of order; IDs are authoritative.
	issue := jira.Issue{
		Changelog: []jira.ChangeEntry{
			status(3, t0.Add(5*time.Hour), "In Progress", "Done"),
			status(2, t0.Add(6*time.Hour), "Open", "In Progress"),
			status(1, t0, "", "Open"),
		},
	}
	r := NewReconstructor(fixedNow(t0.Add(24 * time.Hour)))

	iv := r.TimeInStatus(issue, "In Progress")
	if iv.Total != 0 {
		t.Errorf("expected negative span to clamp to zero, got %v", iv.Total)
	}
	if iv.Open() {
		t.Error("expected the interval to be closed")
	}
}

func TestTimeInStatus_NoChangelog(t *testing.T) {
	r := NewReconstructor(nil)
	iv := r.TimeInStatus(jira.Issue{Key: "PROJ-2", Status: "In Progress"}, "In Progress")

	if iv.Total != 0 || iv.Start != nil || iv.End != nil {
		t.Errorf("expected zero interval with nil boundaries, got %+v", iv)
	}
}

func TestTimeInStatus_OpenIntervalRoundTrip(t *testing.T) {
	now := t0.Add(10 * time.Hour)
	r := NewReconstructor(fixedNow(now))
	changelog := []jira.ChangeEntry{
		status(1, t0, "Open", "In Progress"),
	}

	open := r.TimeInStatus(jira.Issue{Changelog: changelog}, "In Progress")
	if !open.Open() || open.End != nil {
		t.Fatalf("expected an open interval, got %+v", open)
	}
	if open.Total != 10*time.Hour {
		t.Errorf("expected open total measured against now (10h), got %v", open.Total)
	}

	exit := t0.Add(3 * time.Hour)
	changelog = append(changelog, status(2, exit, "In Progress", "Done"))
	closed := r.TimeInStatus(jira.Issue{Changelog: changelog}, "In Progress")

	if closed.End == nil || !closed.End.Equal(exit) {
		t.Fatalf("expected end %v, got %+v", exit, closed.End)
	}
	if closed.Total != closed.End.Sub(*closed.Start) {
		t.Errorf("expected total == end - start, got %v", closed.Total)
	}
}

func TestTimeInStatus_ReentryStillOpenIsCounted(t *testing.T) {
	now := t0.Add(10 * time.Hour)
	r := NewReconstructor(fixedNow(now))
	issue := jira.Issue{Changelog: []jira.ChangeEntry{
		status(1, t0, "Open", "In Progress"),
		status(2, t0.Add(2*time.Hour), "In Progress", "Blocked"),
		status(3, t0.Add(4*time.Hour), "Blocked", "In Progress"),
	}}

	iv := r.TimeInStatus(issue, "In Progress")
	// 2h closed + 6h still open
	if iv.Total != 8*time.Hour {
		t.Errorf("expected 8h including the open re-entry, got %v", iv.Total)
	}
	if len(iv.Spans) != 2 || iv.Spans[1].End != nil {
		t.Errorf("expected one closed and one open span, got %+v", iv.Spans)
	}
	if !iv.Start.Equal(t0) {
		t.Errorf("expected start at first entry, got %v", iv.Start)
	}
}

func TestTimeInStatus_SpansNeverOverlap(t *testing.T) {
	r := NewReconstructor(fixedNow(t0.Add(10 * time.Hour)))
	// Entered twice without leaving in between.
	issue := jira.Issue{Changelog: []jira.ChangeEntry{
		status(1, t0, "Open", "Review"),
		status(2, t0.Add(time.Hour), "Triage", "Review"),
		status(3, t0.Add(3*time.Hour), "Review", "Done"),
	}}

	iv := r.TimeInStatus(issue, "Review")
	if iv.Total != 3*time.Hour {
		t.Errorf("expected 3h, got %v", iv.Total)
	}
	for i := 1; i < len(iv.Spans); i++ {
		if iv.Spans[i].Start.Before(*iv.Spans[i-1].End) {
			t.Errorf("span %d overlaps its predecessor: %+v", i, iv.Spans)
		}
	}
}

func TestSortChangelog_DropsMalformed(t *testing.T) {
	entries := []jira.ChangeEntry{
		{ID: 2, Field: "", From: "a", To: "b"},
		{ID: 1, Field: "status"},
		{ID: 3, Field: "assignee", From: "", To: "bob"},
		status(4, t0, "Open", "Done"),
	}

	sorted := SortChangelog(entries)
	if len(sorted) != 2 {
		t.Fatalf("expected 2 usable entries, got %d", len(sorted))
	}
	if sorted[0].ID != 3 || sorted[1].ID != 4 {
		t.Errorf("unexpected order: %+v", sorted)
	}
	if len(entries) != 4 {
		t.Error("input must not be modified")
	}
}

func TestTimeInStatus_SanityBound(t *testing.T) {
	now := t0.Add(30 * time.Hour)
	r := NewReconstructor(fixedNow(now))
	issue := jira.Issue{
		Created: t0,
		Changelog: []jira.ChangeEntry{
			status(1, t0, "", "Open"),
			status(2, t0.Add(2*time.Hour), "Open", "In Progress"),
			status(3, t0.Add(8*time.Hour), "In Progress", "Blocked"),
			status(4, t0.Add(12*time.Hour), "Blocked", "In Progress"),
		},
	}

	var sum time.Duration
	for _, s := range []string{"Open", "In Progress", "Blocked"} {
		sum += r.TimeInStatus(issue, s).Total
	}
	if sum > now.Sub(issue.Created) {
		t.Errorf("sum of durations %v exceeds ticket age %v", sum, now.Sub(issue.Created))
	}
}
