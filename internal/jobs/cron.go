// Package jobs runs the periodic cache refresh.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eng-metrics/internal/errdefs"
	"eng-metrics/internal/fetcher"
	"eng-metrics/internal/stats"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const refreshTimeout = 10 * time.Minute

type refresher interface {
	SprintHistory(ctx context.Context, q fetcher.SprintQuery) (stats.SprintHistory, error)
	Dashboard(ctx context.Context, queries []fetcher.Query, force bool) (fetcher.Dashboard, error)
}

// Targets lists what a refresh run warms.
type Targets struct {
	JQL    []string
	Boards []int
}

// Cron force-refreshes the configured queries and boards on a schedule.
type Cron struct {
	log     zerolog.Logger
	svc     refresher
	targets Targets
	c       *cron.Cron
	running sync.Mutex
}

// NewCron schedules a refresh of targets on spec, a standard five-field cron
// expression.
func NewCron(spec string, targets Targets, log zerolog.Logger, svc refresher) (*Cron, error) {
	cr := &Cron{
		log:     log,
		svc:     svc,
		targets: targets,
		c:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
	if _, err := cr.c.AddFunc(spec, cr.scheduled); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %v: %w", spec, err, errdefs.ErrConfiguration)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts the scheduler and waits for a running refresh to finish.
func (cr *Cron) Stop() {
	<-cr.c.Stop().Done()
}

func (cr *Cron) scheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := cr.RunOnce(ctx); err != nil {
		cr.log.Error().Err(err).Msg("cron: refresh failed")
	}
}

// RunOnce refreshes every target. Runs never overlap: a call made while
// another is in progress returns immediately. A failing board does not stop
// the remaining ones; all failures are joined.
func (cr *Cron) RunOnce(ctx context.Context) error {
	if !cr.running.TryLock() {
		cr.log.Info().Msg("cron: refresh already running")
		return nil
	}
	defer cr.running.Unlock()

	start := time.Now()
	var errs []error
	queries := make([]fetcher.Query, 0, len(cr.targets.JQL))
	for _, jql := range cr.targets.JQL {
		queries = append(queries, fetcher.Query{JQL: jql})
	}
	// A forced dashboard refreshes points, statuses and cycle time of every
	// query before replacing the stored summary.
	if len(queries) > 0 {
		if _, err := cr.svc.Dashboard(ctx, queries, true); err != nil {
			cr.log.Warn().Err(err).Msg("cron: dashboard refresh failed")
			errs = append(errs, fmt.Errorf("dashboard: %w", err))
		}
	}

	for _, board := range cr.targets.Boards {
		if _, err := cr.svc.SprintHistory(ctx, fetcher.SprintQuery{BoardID: board, Force: true}); err != nil {
			cr.log.Warn().Err(err).Int("board", board).Msg("cron: sprint history refresh failed")
			errs = append(errs, fmt.Errorf("board %d: %w", board, err))
		}
	}

	cr.log.Info().
		Int("queries", len(queries)).
		Int("boards", len(cr.targets.Boards)).
		Int("failures", len(errs)).
		Dur("took", time.Since(start)).
		Msg("cron: refresh done")
	return errors.Join(errs...)
}
