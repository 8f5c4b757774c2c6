package scheduler

import (
	"context"
	"math/rand"
	"time"

	"feedbot/internal/feed"
	"feedbot/internal/stats"
)

// MaxPendingBatches bounds how many runs are queued ahead of time.
const MaxPendingBatches = 3

// DefaultStopTimeout bounds how long Stop waits for an in-flight publish.
const DefaultStopTimeout = 10 * time.Second

// FeedSource resolves runs of feed items.
type FeedSource interface {
	Run(from int) ([]feed.Item, error)
}

// ProgressStore is the part of stats.Store the scheduler writes through.
type ProgressStore interface {
	Progress(ctx context.Context) (stats.Progress, error)
	Commit(ctx context.Context, p stats.Progress) error
	Register(ctx context.Context, externalID, title string) error
	Link(ctx context.Context, externalID, title string) error
	Score(ctx context.Context, title string) (int, error)
}

// Observer receives task outcomes. internal/observability/metrics implements it.
type Observer interface {
	TaskFired(published bool, err error)
	ItemSkipped()
	ProgressCommitted(p stats.Progress)
	PendingChanged(n int)
}

type nopObserver struct{}

func (nopObserver) TaskFired(bool, error)            {}
func (nopObserver) ItemSkipped()                     {}
func (nopObserver) ProgressCommitted(stats.Progress) {}
func (nopObserver) PendingChanged(int)               {}

// Timing is the hot-reloadable part of the configuration. Changes apply to
// batches built after Apply; queued tasks keep their fire times.
type Timing struct {
	Slots      []Slot
	Deviation  time.Duration // jitter window, sampled once per batch
	RestPeriod time.Duration // pure-delay task appended after each batch when > 0
	MinDelay   time.Duration // spacing between items of one run
	MinScore   int           // reruns skip items scoring below this
	MaxReruns  int           // how many times the feed may loop
	Location   *time.Location
}

// Options are fixed for the lifetime of a Scheduler.
type Options struct {
	Online      bool // publish for real; otherwise only log the title
	StopTimeout time.Duration
	Now         func() time.Time
	Rand        *rand.Rand
	Observer    Observer
}

// Task is one pending fire. Item is nil for a pure-delay rest task.
type Task struct {
	ID        string
	FireAt    time.Time
	FeedIndex int
	Item      *feed.Item
	Batch     int
	// Commit is the progress persisted after the task fires; nil commits nothing.
	Commit *stats.Progress

	done  chan struct{}
	fired bool
}

// TaskInfo is the read-only view of a Task.
type TaskInfo struct {
	ID        string
	FireAt    time.Time
	FeedIndex int
	Title     string
	Batch     int
	Rest      bool
}

func (t *Task) info() TaskInfo {
	ti := TaskInfo{ID: t.ID, FireAt: t.FireAt, FeedIndex: t.FeedIndex, Batch: t.Batch, Rest: t.Item == nil}
	if t.Item != nil {
		ti.Title = t.Item.Title
	}
	return ti
}

// Snapshot describes the scheduler state for status output.
type Snapshot struct {
	Running   bool
	Stopping  bool
	Online    bool
	Cursor    stats.Progress // next run to queue
	Committed stats.Progress // last persisted progress
	InFlight  *TaskInfo
	Pending   []TaskInfo
	LastErr   string
}
