package stats

import (
	"slices"
	"time"

	"eng-metrics/internal/jira"
)

// Span is one contiguous stay in a status. End is nil while the stay is open.
type Span struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// StatusInterval is the reconstructed time a ticket spent in one status.
// Start is the first entry into the status. End is nil while the ticket is
// still in it, otherwise the last exit; Total then covers time up to now.
type StatusInterval struct {
	Status string        `json:"status"`
	Start  *time.Time    `json:"start,omitempty"`
	End    *time.Time    `json:"end,omitempty"`
	Total  time.Duration `json:"total"`
	Spans  []Span        `json:"spans,omitempty"`
}

// Open reports whether the ticket is currently in the status.
func (i StatusInterval) Open() bool {
	return i.Start != nil && i.End == nil
}

// SortChangelog returns the usable entries of a changelog ordered by history
// ID. Timestamps break ties only; the upstream source has been seen to emit
// them out of order. Entries without a field, and status changes with neither
// side set, are dropped.
func SortChangelog(entries []jira.ChangeEntry) []jira.ChangeEntry {
	sorted := make([]jira.ChangeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Field == "" {
			continue
		}
		if EqualFold(e.Field, "status") && e.From == "" && e.To == "" {
			continue
		}
		sorted = append(sorted, e)
	}

	slices.SortStableFunc(sorted, func(a, b jira.ChangeEntry) int {
		if a.ID != b.ID {
			if a.ID < b.ID {
				return -1
			}
			return 1
		}
		return a.Created.Compare(b.Created)
	})
	return sorted
}

// Reconstructor derives status intervals from changelogs.
type Reconstructor struct {
	now func() time.Time
}

// NewReconstructor creates a Reconstructor; a nil now uses time.Now.
func NewReconstructor(now func() time.Time) *Reconstructor {
	if now == nil {
		now = time.Now
	}
	return &Reconstructor{now: now}
}

// TimeInStatus reconstructs the time issue spent in status. An issue without
// a changelog yields a zero interval.
func (r *Reconstructor) TimeInStatus(issue jira.Issue, status string) StatusInterval {
	if len(issue.Changelog) == 0 {
		return StatusInterval{Status: status}
	}
	return r.TimeInStatusSorted(SortChangelog(issue.Changelog), status)
}

// TimeInStatusSorted is TimeInStatus over a changelog already passed through
// SortChangelog, so callers can sort once per ticket.
func (r *Reconstructor) TimeInStatusSorted(sorted []jira.ChangeEntry, status string) StatusInterval {
	iv := StatusInterval{Status: status}
	var open *time.Time

	closeAt := func(at time.Time) {
		end := at
		if d := end.Sub(*open); d > 0 {
			iv.Total += d
		}
		iv.Spans = append(iv.Spans, Span{Start: *open, End: &end})
		open = nil
	}

	for _, e := range sorted {
		if !EqualFold(e.Field, "status") {
			continue
		}

		if open != nil && EqualFold(e.From, status) {
			closeAt(e.Created)
		}

		if EqualFold(e.To, status) {
			// Never overlap: a re-entry without an exit closes the prior stay.
			if open != nil {
				closeAt(e.Created)
			}
			entered := e.Created
			open = &entered
			if iv.Start == nil {
				iv.Start = &entered
			}
		}
	}

	if open != nil {
		if d := r.now().Sub(*open); d > 0 {
			iv.Total += d
		}
		iv.Spans = append(iv.Spans, Span{Start: *open})
		return iv
	}

	if n := len(iv.Spans); n > 0 {
		iv.End = iv.Spans[n-1].End
	}
	return iv
}
