package app

import (
	"context"
	"time"

	"feedbot/internal/stats"
	"feedbot/internal/task/scheduler"
)

// Status is the offline view printed by the status command.
type Status struct {
	FeedPath  string
	FeedItems int
	FeedErr   error
	Progress  stats.Progress
	Online    bool
	Persist   bool
	Top       []stats.Ranked
	NextSlots []time.Time
}

// Status reads the feed and the committed progress without starting anything.
func (a *App) Status(ctx context.Context, top int) (Status, error) {
	cfg := a.cfgm.Get()
	st := Status{
		FeedPath: a.feed.Path(),
		Online:   cfg.Functionality.Online,
		Persist:  cfg.Functionality.Persist,
	}
	items, err := a.feed.All()
	st.FeedItems, st.FeedErr = len(items), err

	if st.Progress, err = a.store.Progress(ctx); err != nil {
		return st, err
	}
	if st.Top, err = a.store.Top(ctx, top); err != nil {
		return st, err
	}
	st.NextSlots, _ = a.Preview(time.Now(), 3)
	return st, nil
}

// Preview lists the next n slot instants without jitter.
func (a *App) Preview(now time.Time, n int) ([]time.Time, error) {
	timing, err := mapTiming(a.cfgm.Get())
	if err != nil {
		return nil, err
	}
	if timing.Location != nil {
		now = now.In(timing.Location)
	}
	return scheduler.Preview(now, timing.Slots, n), nil
}

// SaveSnapshot writes a tagged copy of the progress record.
func (a *App) SaveSnapshot(ctx context.Context, suffix string) error {
	if suffix == "" {
		suffix = SnapshotSuffix(time.Now())
	}
	return a.store.SaveSnapshot(ctx, suffix)
}
