package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feedbot/internal/publish"
	"feedbot/internal/stats"
)

const namespace = "feedbot"

// Metrics holds the scheduler collectors on a dedicated registry.
// It satisfies the scheduler's Observer interface.
type Metrics struct {
	reg *prometheus.Registry

	publishTotal   *prometheus.CounterVec
	publishSeconds prometheus.Histogram
	skippedTotal   prometheus.Counter
	commitsTotal   prometheus.Counter
	feedIndex      prometheus.Gauge
	timesRerun     prometheus.Gauge
	pendingTasks   prometheus.Gauge
	lastCommit     prometheus.Gauge
}

// New registers the feedbot collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		publishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Fired feed items by outcome.",
		}, []string{"status"}),
		publishSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Latency of publish calls including retries.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		skippedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Items left out of a rerun pass.",
		}),
		commitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_commits_total",
			Help:      "Successful progress writes.",
		}),
		feedIndex: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_index",
			Help:      "Last committed feed index.",
		}),
		timesRerun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "times_rerun",
			Help:      "Completed loops over the feed.",
		}),
		pendingTasks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tasks",
			Help:      "Tasks waiting for their fire time.",
		}),
		lastCommit: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_commit_timestamp_seconds",
			Help:      "Unix time of the last progress write.",
		}),
	}
}

// Registry exposes the registry for the HTTP handler and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) TaskFired(published bool, err error) {
	m.publishTotal.WithLabelValues(publishStatus(published, err)).Inc()
}

func (m *Metrics) ItemSkipped() { m.skippedTotal.Inc() }

func (m *Metrics) ProgressCommitted(p stats.Progress) {
	m.commitsTotal.Inc()
	m.feedIndex.Set(float64(p.FeedIndex))
	m.timesRerun.Set(float64(p.TimesRerun))
	m.lastCommit.Set(float64(time.Now().Unix()))
}

func (m *Metrics) PendingChanged(n int) { m.pendingTasks.Set(float64(n)) }

// ObservePublish records one publish call duration.
func (m *Metrics) ObservePublish(d time.Duration) { m.publishSeconds.Observe(d.Seconds()) }

// Timed wraps next so every publish call lands in the latency histogram.
func (m *Metrics) Timed(next publish.Publisher) publish.Publisher {
	return publish.PublisherFunc(func(ctx context.Context, text string) (string, error) {
		start := time.Now()
		id, err := next.Publish(ctx, text)
		m.ObservePublish(time.Since(start))
		return id, err
	})
}

func publishStatus(published bool, err error) string {
	switch {
	case published && err != nil:
		return "partial"
	case published:
		return "ok"
	case err == nil:
		return "offline"
	case errors.Is(err, publish.ErrEmptyText):
		return "empty"
	case publish.IsPermanent(err):
		return "rejected"
	default:
		return "failed"
	}
}
