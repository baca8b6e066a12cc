package fetcher

import (
	"context"
	"fmt"

	"eng-metrics/internal/cache"
	"eng-metrics/internal/errdefs"
)

// Dashboard returns the latest summary over queries. Only one dashboard is
// ever stored; a refresh replaces it.
func (f *Fetcher) Dashboard(ctx context.Context, queries []Query, force bool) (Dashboard, error) {
	if len(queries) == 0 {
		return Dashboard{}, fmt.Errorf("dashboard needs at least one query: %w", errdefs.ErrConfiguration)
	}

	if !force {
		rec, ok, err := f.dashboard.Latest(ctx, cache.Filter{})
		if err != nil {
			return Dashboard{}, err
		}
		if ok && covers(rec.Data, queries) {
			return rec.Data, nil
		}
	}

	d := Dashboard{GeneratedAt: f.opts.Now()}
	for _, q := range queries {
		q.Force = force
		entry, err := f.dashboardEntry(ctx, q)
		if err != nil {
			return Dashboard{}, err
		}
		d.Entries = append(d.Entries, entry)
	}

	if err := f.dashboard.Save(ctx, []Dashboard{d}); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (f *Fetcher) dashboardEntry(ctx context.Context, q Query) (DashboardEntry, error) {
	points, err := f.Points(ctx, q)
	if err != nil {
		return DashboardEntry{}, err
	}
	statuses, err := f.Statuses(ctx, q)
	if err != nil {
		return DashboardEntry{}, err
	}
	violations, err := f.CycleTime(ctx, q)
	if err != nil {
		return DashboardEntry{}, err
	}

	return DashboardEntry{
		QueryKey:         q.Key(),
		TotalPoints:      points.TotalPoints,
		PercentComplete:  points.PercentComplete,
		Unpointed:        points.Unpointed,
		RemainingTickets: statuses.RemainingTicketCount,
		Violations:       len(violations),
	}, nil
}

// covers reports whether d was built for exactly queries, in order.
func covers(d Dashboard, queries []Query) bool {
	if len(d.Entries) != len(queries) {
		return false
	}
	for i, q := range queries {
		if d.Entries[i].QueryKey != q.Key() {
			return false
		}
	}
	return true
}
