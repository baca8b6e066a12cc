// Package fetcher puts the time-window cache in front of the metrics engine:
// cached aggregates are served while fresh, otherwise tickets are pulled from
// Jira, aggregated and written back.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"eng-metrics/internal/cache"
	"eng-metrics/internal/docstore"
	"eng-metrics/internal/errdefs"
	"eng-metrics/internal/jira"
	"eng-metrics/internal/stats"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPageSize = 100
	// sharedFetchTimeout bounds a fetch once it no longer follows the
	// cancellation of the caller that started it.
	sharedFetchTimeout = 5 * time.Minute
)

// Options tunes a Fetcher.
type Options struct {
	// PointsField is the friendly name of the story points field.
	PointsField string
	AnalysisTTL time.Duration
	SprintTTL   time.Duration
	// Concurrency bounds parallel sprint report requests.
	Concurrency int
	PageSize    int
	Listener    cache.Listener
	Now         func() time.Time
}

// Fetcher runs cache-through analyses. It is safe for concurrent use;
// concurrent requests for the same cache key share one upstream fetch.
type Fetcher struct {
	client  jira.Client
	agg     *stats.Aggregator
	opts    Options
	session *jira.SessionCache
	group   singleflight.Group

	points    *cache.TimeWindow[PointsRecord]
	timing    *cache.TimeWindow[TimingRecord]
	statuses  *cache.TimeWindow[StatusRecord]
	cycle     *cache.TimeWindow[CycleTimeRecord]
	sprints   *cache.TimeWindow[stats.SprintSnapshot]
	dashboard *cache.TimeWindow[Dashboard]
}

// New creates a Fetcher over client, caching into store.
func New(client jira.Client, store docstore.Store, agg *stats.Aggregator, opts Options) (*Fetcher, error) {
	if client == nil || agg == nil {
		return nil, fmt.Errorf("fetcher needs a jira client and an aggregator: %w", errdefs.ErrConfiguration)
	}
	if opts.PointsField == "" {
		opts.PointsField = "Story Points"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cacheOpts := []cache.Option{cache.WithListener(opts.Listener), cache.WithClock(opts.Now)}
	f := &Fetcher{
		client:  client,
		agg:     agg,
		opts:    opts,
		session: jira.NewSessionCache(),
	}

	var err error
	if f.points, err = cache.New[PointsRecord](store, analysisSpec(typePoints, opts.AnalysisTTL), cacheOpts...); err != nil {
		return nil, err
	}
	if f.timing, err = cache.New[TimingRecord](store, analysisSpec(typeTiming, opts.AnalysisTTL), cacheOpts...); err != nil {
		return nil, err
	}
	if f.statuses, err = cache.New[StatusRecord](store, analysisSpec(typeStatuses, opts.AnalysisTTL), cacheOpts...); err != nil {
		return nil, err
	}
	if f.cycle, err = cache.New[CycleTimeRecord](store, analysisSpec(typeCycleTime, opts.AnalysisTTL), cacheOpts...); err != nil {
		return nil, err
	}
	if f.sprints, err = cache.New[stats.SprintSnapshot](store, sprintSpec(opts.SprintTTL), cacheOpts...); err != nil {
		return nil, err
	}
	if f.dashboard, err = cache.New[Dashboard](store, dashboardSpec(opts.AnalysisTTL), cacheOpts...); err != nil {
		return nil, err
	}
	return f, nil
}

// Points returns the point breakdown of q.
func (f *Fetcher) Points(ctx context.Context, q Query) (stats.AggregateResult, error) {
	rec, err := through(ctx, f, f.points, q, false, func(jql string, issues []jira.Issue) PointsRecord {
		return PointsRecord{QueryKey: q.Key(), JQL: jql, Result: f.agg.PointAnalysis(issues)}
	})
	return rec.Result, err
}

// Timing returns the time spent in the in-progress statuses for q.
func (f *Fetcher) Timing(ctx context.Context, q Query) (stats.TimingResult, error) {
	rec, err := through(ctx, f, f.timing, q, true, func(jql string, issues []jira.Issue) TimingRecord {
		return TimingRecord{QueryKey: q.Key(), JQL: jql, Result: f.agg.TimingAnalysis(issues)}
	})
	return rec.Result, err
}

// Statuses returns the ticket count per status for q.
func (f *Fetcher) Statuses(ctx context.Context, q Query) (stats.StatusResult, error) {
	rec, err := through(ctx, f, f.statuses, q, false, func(jql string, issues []jira.Issue) StatusRecord {
		return StatusRecord{QueryKey: q.Key(), JQL: jql, Result: f.agg.StatusAnalysis(issues)}
	})
	return rec.Result, err
}

// CycleTime returns the cycle-time violations of q, largest overage first.
func (f *Fetcher) CycleTime(ctx context.Context, q Query) ([]stats.Violation, error) {
	rec, err := through(ctx, f, f.cycle, q, true, func(jql string, issues []jira.Issue) CycleTimeRecord {
		return CycleTimeRecord{QueryKey: q.Key(), JQL: jql, Violations: stats.SortedViolations(f.agg.CycleTimeAnalysis(issues))}
	})
	return rec.Violations, err
}

// through serves the newest fresh record for q from c, or computes and saves
// a new one from freshly fetched issues.
func through[T any](ctx context.Context, f *Fetcher, c *cache.TimeWindow[T], q Query, changelog bool, compute func(jql string, issues []jira.Issue) T) (T, error) {
	var zero T
	if err := q.validate(); err != nil {
		return zero, err
	}
	key := q.Key()
	ctx = f.withSession(ctx)

	if !q.Force {
		records, err := c.LoadWithTTL(ctx, cache.Filter{Fields: map[string]any{fieldQueryKey: key}, Limit: 1}, q.TTL)
		if err != nil {
			return zero, err
		}
		if len(records) > 0 {
			log.Debug().Str("cache", c.Spec().StorageType).Str("key", key).Msg("Serving cached analysis")
			return records[0].Data, nil
		}
	}

	v, err, shared := f.shared(ctx, c.Spec().StorageType+"|"+key, func(ctx context.Context) (any, error) {
		jql, err := f.resolveJQL(ctx, q)
		if err != nil {
			return nil, err
		}
		issues, err := f.fetchIssues(ctx, jql, changelog)
		if err != nil {
			return nil, err
		}

		data := compute(jql, issues)
		if err := c.Save(ctx, []T{data}); err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}
	if shared {
		log.Debug().Str("key", key).Msg("Shared in-flight fetch")
	}
	return v.(T), nil
}

// shared runs fn once per key across concurrent callers. The fetch runs
// detached from the caller's cancellation so that one caller giving up does
// not fail the others waiting on the same key; a cancelled caller returns
// its own context error while the fetch completes and fills the cache.
func (f *Fetcher) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	ch := f.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fn(fctx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

func (f *Fetcher) withSession(ctx context.Context) context.Context {
	if jira.SessionFrom(ctx) != nil {
		return ctx
	}
	return jira.WithSession(ctx, f.session)
}

func (f *Fetcher) resolveJQL(ctx context.Context, q Query) (string, error) {
	if q.FilterID == "" {
		return q.JQL, nil
	}
	filter, err := f.client.GetFilter(ctx, q.FilterID)
	if err != nil {
		return "", fmt.Errorf("resolve filter %s: %w", q.FilterID, err)
	}
	return filter.JQL, nil
}

// fetchIssues pages through a JQL search and maps every issue.
func (f *Fetcher) fetchIssues(ctx context.Context, jql string, changelog bool) ([]jira.Issue, error) {
	pointsField, err := f.client.FieldID(ctx, f.opts.PointsField)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return nil, err
		}
		log.Warn().Str("field", f.opts.PointsField).Msg("Story points field not found, points will be zero")
		pointsField = ""
	}

	var issues []jira.Issue
	for startAt := 0; ; {
		resp, err := f.client.SearchIssues(ctx, jql, startAt, f.opts.PageSize, changelog)
		if err != nil {
			return nil, fmt.Errorf("search %q at %d: %w", jql, startAt, err)
		}
		for _, dto := range resp.Issues {
			issues = append(issues, jira.MapIssue(dto, pointsField))
		}

		startAt += len(resp.Issues)
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			break
		}
	}

	log.Info().Int("count", len(issues)).Bool("changelog", changelog).Msg("Fetched issues")
	return issues, nil
}
