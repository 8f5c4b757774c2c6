package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"feedbot/internal/feed"
	"feedbot/internal/stats"
	logx "feedbot/pkg/logx"
)

// replenishLocked queues runs until MaxPendingBatches are pending, the feed
// ends without looping, or the feed fails to load. Load failures are kept in
// s.loadErr; only a progress write failure is returned.
func (s *Scheduler) replenishLocked(ctx context.Context) error {
	s.loadErr = nil
	tm := s.timing

	for !s.stopping && s.pendingBatchesLocked() < MaxPendingBatches {
		c := s.cursor
		if c.TimesRerun > 0 && c.LastRerunIndex > 0 && c.FeedIndex > c.LastRerunIndex {
			s.log.Info("rerun boundary passed", logx.Int("feed_index", c.FeedIndex), logx.Int("last_rerun_index", c.LastRerunIndex))
			s.cursor.TimesRerun = 0
		}

		run, err := s.feed.Run(s.cursor.FeedIndex)
		if err != nil {
			total, ended := endOfFeed(err)
			if !ended {
				s.loadErr = err
				s.log.Warn("feed load failed, replenish halted", logx.Err(err))
				return nil
			}
			if total == 0 || s.cursor.TimesRerun >= tm.MaxReruns || s.idleLoop {
				s.log.Debug("end of feed", logx.Int("total", total), logx.Int("times_rerun", s.cursor.TimesRerun))
				return nil
			}
			s.idleLoop = true
			s.cursor = stats.Progress{FeedIndex: 0, TimesRerun: s.cursor.TimesRerun + 1, LastRerunIndex: total}
			s.log.Info("feed looped", logx.Int("times_rerun", s.cursor.TimesRerun), logx.Int("total", total))
			continue
		}

		n, err := s.queueRunLocked(ctx, run, tm)
		if err != nil {
			return err
		}
		if n > 0 {
			s.idleLoop = false
		}
	}
	return nil
}

// endOfFeed reports whether err only says the index is past the last item.
// An empty feed is always at its end.
func endOfFeed(err error) (int, bool) {
	var lfe *feed.LoadFeedError
	if !errors.As(err, &lfe) || lfe.Err != nil || lfe.Index < 0 {
		return 0, false
	}
	return lfe.Total, lfe.Index >= lfe.Total
}

// queueRunLocked turns one run into tasks and advances the cursor past every
// examined item. It returns how many publish tasks were queued.
func (s *Scheduler) queueRunLocked(ctx context.Context, run []feed.Item, tm Timing) (int, error) {
	rerun := s.cursor.TimesRerun > 0
	picked := make([]feed.Item, 0, len(run))
	for _, it := range run {
		if rerun && !s.rerunEligibleLocked(ctx, it, tm) {
			s.obs.ItemSkipped()
			s.log.Debug("rerun skipped", logx.Int("index", it.Index), logx.String("title", it.Title))
			continue
		}
		picked = append(picked, it)
	}

	next := s.cursor
	next.FeedIndex += len(run)
	s.cursor = next

	if len(picked) == 0 {
		if len(s.queue) > 0 {
			// the last queued task now also commits past the skipped items
			c := next
			s.queue[len(s.queue)-1].Commit = &c
			return 0, nil
		}
		if err := s.commit(ctx, next); err != nil {
			return 0, err
		}
		s.committed = next
		return 0, nil
	}

	s.batchSeq++
	batch := s.batchSeq

	base := s.opts.Now()
	if last := s.lastFireLocked(); last.After(base) {
		base = last
	}
	if tm.Location != nil {
		base = base.In(tm.Location)
	}
	jitter := SampleJitter(s.rng, tm.Deviation)
	at := NextFire(base, tm.Slots, jitter, tm.MinDelay)
	first := at

	for i := range picked {
		it := picked[i]
		if i > 0 {
			at = at.Add(tm.MinDelay)
		}
		commit := stats.Progress{FeedIndex: it.Index + 1, TimesRerun: next.TimesRerun, LastRerunIndex: next.LastRerunIndex}
		if i == len(picked)-1 {
			commit = next
		}
		s.queue = append(s.queue, &Task{
			ID:        uuid.NewString(),
			FireAt:    at,
			FeedIndex: it.Index,
			Item:      &it,
			Batch:     batch,
			Commit:    &commit,
			done:      make(chan struct{}),
		})
	}
	if tm.RestPeriod > 0 {
		s.queue = append(s.queue, &Task{
			ID:        uuid.NewString(),
			FireAt:    at.Add(tm.RestPeriod),
			FeedIndex: next.FeedIndex,
			Batch:     batch,
			done:      make(chan struct{}),
		})
	}

	s.log.Debug("run queued",
		logx.Int("batch", batch),
		logx.Int("from", run[0].Index),
		logx.Int("items", len(picked)),
		logx.Int("skipped", len(run)-len(picked)),
		logx.Time("first", first),
	)
	return len(picked), nil
}

// rerunEligibleLocked applies the rerun flag and the minimum score.
func (s *Scheduler) rerunEligibleLocked(ctx context.Context, it feed.Item, tm Timing) bool {
	if !it.Rerun {
		return false
	}
	if tm.MinScore <= 0 {
		return true
	}
	score, err := s.store.Score(ctx, it.Title)
	if err != nil {
		s.log.Warn("score lookup failed", logx.String("title", it.Title), logx.Err(err))
		score = 0
	}
	return score >= tm.MinScore
}
