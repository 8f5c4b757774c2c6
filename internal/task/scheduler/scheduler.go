package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"feedbot/internal/publish"
	"feedbot/internal/stats"
	logx "feedbot/pkg/logx"
)

// Scheduler owns the pending-task queue. Create one per progress store.
type Scheduler struct {
	feed  FeedSource
	store ProgressStore
	pub   publish.Publisher
	log   logx.Logger
	obs   Observer
	opts  Options

	// slot is the in-flight permit: at most one task body runs at a time.
	slot chan struct{}
	errs chan error

	mu        sync.Mutex
	timing    Timing
	rng       *rand.Rand
	queue     []*Task // ordered by FireAt
	armed     *Task
	timer     *time.Timer
	inflight  *Task
	stopping  bool
	cursor    stats.Progress // where the next batch starts
	committed stats.Progress
	batchSeq  int
	idleLoop  bool // looped around and queued nothing since; ends looping
	loadErr   error
	lastErr   error

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(src FeedSource, store ProgressStore, pub publish.Publisher, timing Timing, opts Options, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Rand == nil {
		opts.Rand = newRand("scheduler")
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Scheduler{
		feed:   src,
		store:  store,
		pub:    pub,
		log:    log,
		obs:    obs,
		opts:   opts,
		slot:   make(chan struct{}, 1),
		errs:   make(chan error, 1),
		timing: timing,
		rng:    opts.Rand,
	}
}

// Errors delivers fatal store-write failures. The scheduler is already stopped when one arrives.
func (s *Scheduler) Errors() <-chan error { return s.errs }

// Apply swaps the timing used for batches built from now on.
func (s *Scheduler) Apply(t Timing) {
	s.mu.Lock()
	s.timing = t
	s.mu.Unlock()
	s.log.Info("timing applied",
		logx.Int("slots", len(t.Slots)),
		logx.Duration("deviation", t.Deviation),
		logx.Duration("min_delay", t.MinDelay),
		logx.Int("max_reruns", t.MaxReruns),
	)
}

// IsRunning reports whether a task is pending or a publish is in flight.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunningLocked()
}

func (s *Scheduler) isRunningLocked() bool {
	return len(s.queue) > 0 || s.inflight != nil
}

// Start resumes from the committed progress and queues the next runs.
// It returns the feed load error when nothing could be scheduled because of it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunningLocked() {
		return ErrExistingTimer
	}

	p, err := s.store.Progress(ctx)
	if err != nil {
		return err
	}
	s.cursor = p
	s.committed = p
	s.stopping = false
	s.idleLoop = false
	s.loadErr = nil
	s.lastErr = nil
	if s.runCancel != nil {
		s.runCancel()
	}
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	s.log.Info("start requested",
		logx.Int("feed_index", p.FeedIndex),
		logx.Int("times_rerun", p.TimesRerun),
		logx.Int("last_rerun_index", p.LastRerunIndex),
		logx.Bool("online", s.opts.Online),
	)

	if err := s.replenishLocked(ctx); err != nil {
		s.stopping = true
		s.cancelQueueLocked()
		return err
	}
	s.armLocked()

	if len(s.queue) == 0 {
		if s.loadErr != nil {
			return s.loadErr
		}
		s.log.Info("nothing to schedule", logx.Int("feed_index", s.cursor.FeedIndex))
		return nil
	}
	if s.loadErr != nil {
		s.log.Warn("feed load failed after queueing", logx.Err(s.loadErr))
	}
	s.log.Info("service started", logx.Int("pending", len(s.queue)), logx.Time("next", s.queue[0].FireAt))
	return nil
}

// Stop halts firing, waits (bounded) for an in-flight publish and cancels
// every pending task. Progress is not touched. Safe to call repeatedly.
func (s *Scheduler) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	s.stopping = true
	s.stopTimerLocked()
	cancelled := s.cancelQueueLocked()
	inflight := s.inflight
	cancel := s.runCancel
	s.mu.Unlock()

	if inflight != nil {
		t := time.NewTimer(s.opts.StopTimeout)
		select {
		case <-inflight.done:
		case <-t.C:
			s.log.Warn("in-flight task did not finish before stop timeout",
				logx.String("task", inflight.ID), logx.Duration("timeout", s.opts.StopTimeout))
		case <-ctx.Done():
		}
		t.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Int("cancelled", cancelled), logx.Duration("took", time.Since(start)))
}

// Force runs the earliest pending task now through the normal path.
// It waits for an in-flight task first.
func (s *Scheduler) Force(ctx context.Context) error {
	s.mu.Lock()
	empty := len(s.queue) == 0 && s.inflight == nil
	s.mu.Unlock()
	if empty {
		return ErrNoTimer
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	if len(s.queue) == 0 || s.stopping {
		s.mu.Unlock()
		<-s.slot
		return ErrNoTimer
	}
	s.stopTimerLocked()
	t := s.popLocked()
	s.inflight = t
	runCtx := s.runCtx
	s.mu.Unlock()

	s.log.Info("task forced", logx.String("task", t.ID), logx.Time("was_due", t.FireAt))
	s.execute(runCtx, t)
	return nil
}

// WaitFor blocks until the in-flight task, or else the earliest pending one,
// completes. It reports whether that task fired before timeout (0 waits forever).
func (s *Scheduler) WaitFor(timeout time.Duration, expectPending bool) (bool, error) {
	s.mu.Lock()
	t := s.inflight
	if t == nil && len(s.queue) > 0 {
		t = s.queue[0]
	}
	s.mu.Unlock()

	if t == nil {
		if expectPending {
			return false, ErrNoTimer
		}
		return false, nil
	}

	if timeout <= 0 {
		<-t.done
		return t.fired, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.fired, nil
	case <-timer.C:
		return false, nil
	}
}

func (s *Scheduler) armLocked() {
	s.obs.PendingChanged(len(s.queue))
	if s.stopping || len(s.queue) == 0 {
		s.stopTimerLocked()
		return
	}
	t := s.queue[0]
	if s.armed == t {
		return
	}
	s.stopTimerLocked()
	s.armed = t
	s.timer = time.AfterFunc(t.FireAt.Sub(s.opts.Now()), func() { s.fire(t) })
	s.log.Debug("timer armed", logx.String("task", t.ID), logx.Time("at", t.FireAt))
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = nil
}

func (s *Scheduler) popLocked() *Task {
	t := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return t
}

func (s *Scheduler) cancelQueueLocked() int {
	n := len(s.queue)
	for _, t := range s.queue {
		close(t.done)
	}
	s.queue = nil
	s.obs.PendingChanged(0)
	return n
}

func (s *Scheduler) lastFireLocked() time.Time {
	if len(s.queue) > 0 {
		return s.queue[len(s.queue)-1].FireAt
	}
	if s.inflight != nil {
		return s.inflight.FireAt
	}
	return time.Time{}
}

func (s *Scheduler) pendingBatchesLocked() int {
	n, last := 0, -1
	for _, t := range s.queue {
		if t.Batch != last {
			n++
			last = t.Batch
		}
	}
	return n
}
