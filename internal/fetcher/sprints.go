package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eng-metrics/internal/cache"
	"eng-metrics/internal/jira"
	"eng-metrics/internal/stats"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SprintQuery selects the sprints of a board to fold into a history.
type SprintQuery struct {
	BoardID int
	// Limit keeps only the most recent sprints when positive.
	Limit int
	Force bool
}

// SprintHistory folds the sprint reports of a board into running totals.
// Closed sprints are served from the sprint report cache; active sprints,
// sprints cached while still active and cache misses are fetched
// concurrently and written back.
func (f *Fetcher) SprintHistory(ctx context.Context, q SprintQuery) (stats.SprintHistory, error) {
	snapshots, err := f.SprintSnapshots(ctx, q)
	if err != nil {
		return stats.SprintHistory{}, err
	}
	return stats.AggregateSprintHistory(snapshots), nil
}

// SprintSnapshots returns the per-sprint counters of a board ordered by end
// date.
func (f *Fetcher) SprintSnapshots(ctx context.Context, q SprintQuery) ([]stats.SprintSnapshot, error) {
	ctx = f.withSession(ctx)

	v, err, _ := f.shared(ctx, fmt.Sprintf("sprints|%d|%d|%t", q.BoardID, q.Limit, q.Force), func(ctx context.Context) (any, error) {
		return f.loadSprintSnapshots(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return v.([]stats.SprintSnapshot), nil
}

func (f *Fetcher) loadSprintSnapshots(ctx context.Context, q SprintQuery) ([]stats.SprintSnapshot, error) {
	sprints, err := f.client.GetSprints(ctx, q.BoardID)
	if err != nil {
		return nil, fmt.Errorf("list sprints of board %d: %w", q.BoardID, err)
	}
	sprints = recentSprints(sprints, q.Limit)

	cached := make(map[string]stats.SprintSnapshot)
	if !q.Force {
		records, err := f.sprints.Load(ctx, cache.Filter{Fields: map[string]any{fieldBoardID: q.BoardID}})
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if _, seen := cached[r.Data.SprintKey]; !seen {
				cached[r.Data.SprintKey] = r.Data
			}
		}
	}

	snapshots := make([]stats.SprintSnapshot, len(sprints))
	fresh := make([]bool, len(sprints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i, sprint := range sprints {
		// A snapshot taken while the sprint was running is stale once it
		// closes, even if still within the TTL.
		if snap, ok := cached[stats.SprintKey(q.BoardID, sprint.ID)]; ok && !sprint.Active() && !strings.EqualFold(snap.State, "active") {
			snapshots[i] = snap
			continue
		}

		g.Go(func() error {
			report, err := f.client.GetSprintReport(gctx, q.BoardID, sprint.ID)
			if err != nil {
				return fmt.Errorf("sprint report %d of board %d: %w", sprint.ID, q.BoardID, err)
			}
			if report.Sprint.Name == "" {
				report.Sprint = mergeSprint(report.Sprint, sprint)
			}
			snapshots[i] = stats.NewSprintSnapshot(*report)
			fresh[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var updated []stats.SprintSnapshot
	for i, snap := range snapshots {
		if fresh[i] {
			updated = append(updated, snap)
		}
	}
	if len(updated) > 0 {
		if err := f.sprints.Update(ctx, updated); err != nil {
			return nil, err
		}
	}

	log.Info().Int("board", q.BoardID).Int("sprints", len(snapshots)).Int("fetched", len(updated)).Msg("Sprint snapshots ready")
	stats.SortSnapshotsByEnd(snapshots)
	return snapshots, nil
}

// recentSprints drops future sprints and keeps the last limit by end date.
func recentSprints(sprints []jira.Sprint, limit int) []jira.Sprint {
	var out []jira.Sprint
	for _, s := range sprints {
		if strings.EqualFold(s.State, "future") {
			continue
		}
		out = append(out, s)
	}
	if limit > 0 && len(out) > limit {
		snaps := make([]stats.SprintSnapshot, len(out))
		byID := make(map[int]jira.Sprint, len(out))
		for i, s := range out {
			snaps[i] = stats.SprintSnapshot{SprintID: s.ID, EndDate: sprintEnd(s)}
			byID[s.ID] = s
		}
		stats.SortSnapshotsByEnd(snaps)

		kept := make([]jira.Sprint, 0, limit)
		for _, snap := range snaps[len(snaps)-limit:] {
			kept = append(kept, byID[snap.SprintID])
		}
		out = kept
	}
	return out
}

func sprintEnd(s jira.Sprint) *time.Time {
	if s.CompleteDate != nil {
		return s.CompleteDate
	}
	return s.EndDate
}

func mergeSprint(report, listed jira.Sprint) jira.Sprint {
	report.ID = listed.ID
	report.Name = listed.Name
	report.State = listed.State
	if report.EndDate == nil {
		report.EndDate = listed.EndDate
	}
	if report.CompleteDate == nil {
		report.CompleteDate = listed.CompleteDate
	}
	return report
}
