package app

import (
	"context"
	"strings"

	"feedbot/internal/config"
	logx "feedbot/pkg/logx"
)

// reloadLoop applies hot-reloadable sections: logging, schedule timing,
// metrics, jobs and the snapshot cron. Other sections need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()

	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			next = c
		}
		// coalesce bursts
		for drained := false; !drained; {
			select {
			case c := <-sub:
				if c != nil {
					next = c
				}
			default:
				drained = true
			}
		}

		a.apply(ctx, last, next)
		last = next
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if timing, err := mapTiming(next); err != nil {
		a.log.Warn("invalid schedule config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(timing)
	}

	if mc, err := mapMetricsConfig(next); err != nil {
		a.log.Warn("invalid metrics config; keeping previous", logx.Err(err))
	} else {
		a.metricsSrv.Reconfigure(ctx, mc)
	}

	if jc, err := mapJobsConfig(next); err != nil {
		a.log.Warn("invalid jobs config; keeping previous", logx.Err(err))
	} else {
		a.jobs.Apply(jc)
	}
	if prev == nil || prev.Storage.SnapshotCron != next.Storage.SnapshotCron {
		if err := a.applySnapshotJob(next.Storage.SnapshotCron); err != nil {
			a.log.Warn("snapshot job not updated", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
