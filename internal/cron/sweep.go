package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// sweepFunc expires or deletes rows as of now and reports how many it touched.
type sweepFunc func(ctx context.Context, now time.Time) (int64, error)

// sweepJob is the shape shared by every DishDash cron job: one bulk statement
// evaluated against the wall clock, logged with its cutoff.
type sweepJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	sweep     sweepFunc
	now       func() time.Time
}

func newSweepJob(name string, logg *logger.Logger, retention time.Duration, sweep sweepFunc) (Job, error) {
	if name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sweepJob{
		name:      name,
		logg:      logg,
		retention: retention,
		sweep:     sweep,
		now:       time.Now,
	}, nil
}

func (j *sweepJob) Name() string { return j.name }

// cutoff is now for expiry sweeps and now minus retention for cleanup jobs.
func (j *sweepJob) cutoff() time.Time {
	return j.now().UTC().Add(-j.retention)
}

func (j *sweepJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.cutoff()
	affected, err := j.sweep(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", j.name, err)
	}
	fields := map[string]any{
		"cutoff":        cutoff,
		"rows_affected": affected,
	}
	if j.retention > 0 {
		fields["retention_hours"] = j.retention.Hours()
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "sweep complete")
	return affected, nil
}
