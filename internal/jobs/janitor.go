// Package jobs runs periodic housekeeping.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Pruner deletes poll and power log rows older than a cutoff.
type Pruner interface {
	PruneLogs(ctx context.Context, before time.Time) (int64, error)
}

// Janitor prunes old log rows on a cron schedule.
type Janitor struct {
	store     Pruner
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
	cron      *cron.Cron
}

func NewJanitor(store Pruner, retention time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		timeout:   time.Minute,
		now:       time.Now,
		cron:      cron.New(),
	}
}

// Start schedules the prune job. spec is a standard cron expression or a descriptor
// such as "@daily".
func (j *Janitor) Start(spec string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	j.cron.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("log retention run failed")
		}
	}))
	j.cron.Start()
	log.Info().Str("schedule", spec).Dur("retention", j.retention).Msg("log retention janitor started")
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce prunes everything older than the retention period.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.store.PruneLogs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("rows", n).Time("before", cutoff).Msg("pruned old log rows")
	return n, nil
}
