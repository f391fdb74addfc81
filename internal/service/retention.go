package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"water_heater/internal/logger"
)

type eventPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Retention deletes events older than keep on a cron schedule.
type Retention struct {
	events eventPruner
	keep   time.Duration
	now    func() time.Time
	log    *logger.Logger
}

func NewRetention(events eventPruner, keep time.Duration, log *logger.Logger) *Retention {
	if log == nil {
		log = logger.Nop()
	}
	return &Retention{events: events, keep: keep, now: time.Now, log: log}
}

// PruneOnce deletes everything that occurred before now-keep. A zero keep
// disables pruning.
func (r *Retention) PruneOnce(ctx context.Context) (int64, error) {
	if r.keep <= 0 {
		return 0, nil
	}
	before := r.now().Add(-r.keep)
	n, err := r.events.Prune(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("prune events before %s: %w", before.Format(time.RFC3339), err)
	}
	if n > 0 {
		r.log.Infow("events_pruned", "count", n, "before", before.Format(time.RFC3339))
	}
	return n, nil
}

// Run schedules PruneOnce with a standard cron spec (or a descriptor such as
// "@daily") and blocks until ctx is done.
func (r *Retention) Run(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.PruneOnce(ctx); err != nil {
			r.log.Warnw("events_prune_failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
