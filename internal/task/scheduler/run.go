package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedbot/internal/stats"
	logx "feedbot/pkg/logx"
)

// commitError marks a progress write failure; it stops the scheduler.
type commitError struct {
	Progress stats.Progress
	Err      error
}

func (e *commitError) Error() string {
	return fmt.Sprintf("commit feed index %d: %v", e.Progress.FeedIndex, e.Err)
}

func (e *commitError) Unwrap() error { return e.Err }

const commitTimeout = 30 * time.Second

// fire is the timer callback. It only runs the task it was armed for.
func (s *Scheduler) fire(t *Task) {
	s.slot <- struct{}{}

	s.mu.Lock()
	if s.stopping || s.armed != t || len(s.queue) == 0 || s.queue[0] != t {
		s.mu.Unlock()
		<-s.slot
		return
	}
	s.popLocked()
	s.armed = nil
	s.timer = nil
	s.inflight = t
	runCtx := s.runCtx
	s.mu.Unlock()

	s.execute(runCtx, t)
}

// execute runs a dequeued task while holding the in-flight permit:
// publish, commit, replenish, then release.
func (s *Scheduler) execute(ctx context.Context, t *Task) {
	defer func() { <-s.slot }()

	published, perr := s.publish(ctx, t)
	if t.Item != nil {
		s.obs.TaskFired(published, perr)
	}

	if t.Commit != nil {
		if err := s.commit(ctx, *t.Commit); err != nil {
			s.halt(t, err)
			return
		}
	}

	s.mu.Lock()
	if t.Commit != nil {
		s.committed = *t.Commit
	}
	s.inflight = nil
	t.fired = true
	var fatal error
	if !s.stopping {
		fatal = s.replenishLocked(ctx)
		if fatal == nil {
			s.armLocked()
		}
	}
	idle := !s.isRunningLocked()
	s.mu.Unlock()
	close(t.done)

	if fatal != nil {
		s.halt(nil, fatal)
		return
	}
	if idle {
		s.log.Info("feed exhausted, scheduler idle", logx.Int("feed_index", s.Snapshot().Committed.FeedIndex))
	}
}

// publish performs the task body. Publish failures are logged and reported,
// never returned as fatal: the index advances regardless. A partly live post
// is still registered so its engagement is attributed.
func (s *Scheduler) publish(ctx context.Context, t *Task) (bool, error) {
	if t.Item == nil {
		s.log.Debug("rest period elapsed", logx.String("task", t.ID))
		return false, nil
	}
	it := t.Item
	fields := []logx.Field{
		logx.String("task", t.ID),
		logx.Int("index", it.Index),
		logx.String("title", it.Title),
		logx.Int("batch", t.Batch),
	}

	if !s.opts.Online || s.pub == nil {
		s.log.Info("publish (offline)", fields...)
		return false, nil
	}

	start := time.Now()
	id, err := s.pub.Publish(ctx, it.Text)
	switch {
	case err != nil && id == "":
		s.log.Error("publish failed, advancing anyway", append(fields, logx.Err(err))...)
		return false, err
	case err != nil:
		s.log.Error("publish partly failed, registering live part", append(fields, logx.String("id", id), logx.Err(err))...)
	default:
		s.log.Info("published", append(fields, logx.String("id", id), logx.Duration("took", time.Since(start)))...)
	}

	rerr := s.store.Register(ctx, id, it.Title)
	if errors.Is(rerr, stats.ErrAlreadyRegistered) {
		rerr = s.store.Link(ctx, id, it.Title)
	}
	if rerr != nil {
		s.log.Warn("register published item failed", append(fields, logx.Err(rerr))...)
	}
	return true, err
}

// commit writes p through the store. Callers record it in s.committed.
func (s *Scheduler) commit(ctx context.Context, p stats.Progress) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := s.store.Commit(cctx, p); err != nil {
		return &commitError{Progress: p, Err: err}
	}
	s.obs.ProgressCommitted(p)
	s.log.Debug("progress committed", logx.Int("feed_index", p.FeedIndex), logx.Int("times_rerun", p.TimesRerun))
	return nil
}

// halt stops the scheduler after a progress write failure and reports it on Errors().
func (s *Scheduler) halt(t *Task, err error) {
	s.mu.Lock()
	if t != nil && s.inflight == t {
		s.inflight = nil
	}
	s.stopping = true
	s.lastErr = err
	s.stopTimerLocked()
	cancelled := s.cancelQueueLocked()
	s.mu.Unlock()
	if t != nil {
		close(t.done)
	}

	s.log.Error("progress write failed, scheduler stopped", logx.Err(err), logx.Int("cancelled", cancelled))
	select {
	case s.errs <- err:
	default:
	}
}
