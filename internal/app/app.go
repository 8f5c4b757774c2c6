package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"feedbot/internal/config"
	"feedbot/internal/feed"
	"feedbot/internal/observability/metrics"
	"feedbot/internal/publish"
	rtsup "feedbot/internal/runtime/supervisor"
	"feedbot/internal/stats"
	"feedbot/internal/storage"
	"feedbot/internal/task/cronjob"
	"feedbot/internal/task/scheduler"
	logx "feedbot/pkg/logx"
)

const snapshotJob = "progress:snapshot"

type App struct {
	cfgm *config.ConfigManager
	fs   afero.Fs

	sup  *rtsup.Supervisor
	log  logx.Logger
	logs *logx.Service

	backend storage.Backend
	store   *stats.Store
	feed    *feed.Accessor
	sched   *scheduler.Scheduler
	jobs    *cronjob.Service

	metrics    *metrics.Metrics
	metricsSrv *metrics.Server

	stopTimeout time.Duration
}

type Option func(*options)

type options struct {
	fs      afero.Fs
	pub     publish.Publisher
	getenv  func(string) string
	inspect bool
}

// WithFs reads config, feed and the file backend from fs.
func WithFs(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithPublisher replaces the Telegram publisher.
func WithPublisher(p publish.Publisher) Option { return func(o *options) { o.pub = p } }

// InspectOnly skips building the Telegram publisher, which contacts the API
// on creation. Used by commands that only read progress.
func InspectOnly() Option { return func(o *options) { o.inspect = true } }

// WithEnv replaces the environment lookup used for config overrides.
func WithEnv(getenv func(string) string) Option { return func(o *options) { o.getenv = getenv } }

// New loads the config and wires every component without starting anything.
func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{fs: afero.NewOsFs()}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath).WithFs(o.fs)
	if o.getenv != nil {
		cfgm.WithEnv(o.getenv)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg))
	log := root.Named("app")

	timing, err := mapTiming(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(sc, o.fs, root.Named("storage"))
	if err != nil {
		return nil, err
	}
	store := stats.New(backend, root.Named("stats"))
	acc := feed.New(o.fs, cfg.Feed.Path, root.Named("feed"))
	m := metrics.New()

	pub := o.pub
	if pub == nil && cfg.Functionality.Online && !o.inspect {
		tg, err := publish.NewTelegram(publish.TelegramConfig{
			Token:     cfg.Telegram.Token,
			Channel:   cfg.Telegram.Channel,
			ParseMode: cfg.Telegram.ParseMode,
		}, root.Named("telegram"))
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		pub = tg
	}
	if pub != nil {
		rc, err := mapRetryConfig(cfg)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		pub = m.Timed(publish.WithRetry(pub, rc, root.Named("publish")))
	}

	stopTO := stopTimeout(cfg)
	sched := scheduler.New(acc, store, pub, timing, scheduler.Options{
		Online:      cfg.Functionality.Online,
		StopTimeout: stopTO,
		Observer:    m,
	}, root.Named("scheduler"))

	jc, err := mapJobsConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	mc, err := mapMetricsConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	log.Info("storage opened",
		logx.String("driver", sc.Driver),
		logx.Bool("persist", cfg.Functionality.Persist),
		logx.Bool("online", cfg.Functionality.Online),
	)

	return &App{
		cfgm:        cfgm,
		fs:          o.fs,
		log:         log,
		logs:        logSvc,
		backend:     backend,
		store:       store,
		feed:        acc,
		sched:       sched,
		jobs:        cronjob.New(jc, root.Named("jobs")),
		metrics:     m,
		metricsSrv:  metrics.NewServer(m, mc, root.Named("metrics")),
		stopTimeout: stopTO,
	}, nil
}

func (a *App) Config() *config.Config          { return a.cfgm.Get() }
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Store() *stats.Store             { return a.store }
func (a *App) Logger() logx.Logger             { return a.log }

// Done is closed when the app supervisor is canceled by a fatal error or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the scheduler, maintenance jobs, metrics and config hot reload.
// A feed that cannot be loaded leaves the scheduler idle and is only logged;
// other scheduler start failures (reading progress) are returned.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.logs.Logger().Named("config"))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapTiming(cfg); err != nil {
			return err
		}
		if _, err := mapMetricsConfig(cfg); err != nil {
			return err
		}
		if _, err := mapJobsConfig(cfg); err != nil {
			return err
		}
		_, err := mapRetryConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()
	if mc, err := mapMetricsConfig(cfg); err == nil {
		a.metricsSrv.Reconfigure(runCtx, mc)
	}

	a.jobs.Start(runCtx)
	if err := a.applySnapshotJob(cfg.Storage.SnapshotCron); err != nil {
		return err
	}

	if err := a.sched.Start(runCtx); err != nil {
		if !errors.Is(err, feed.ErrLoadFeed) {
			return fmt.Errorf("start scheduler: %w", err)
		}
		// the rest of the app keeps running; a restart after fixing the feed resumes
		a.log.Warn("feed not loaded, scheduler idle", logx.String("feed", a.feed.Path()), logx.Err(err))
	}

	a.sup.Go("scheduler.errors", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case err := <-a.sched.Errors():
			return err
		}
	})
	a.sup.Go("config.reload", func(c context.Context) error {
		a.reloadLoop(c)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.String("feed", a.feed.Path()))
	return nil
}

// applySnapshotJob registers, replaces or removes the periodic snapshot.
func (a *App) applySnapshotJob(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		a.jobs.Remove(snapshotJob)
		return nil
	}
	return a.jobs.Add(snapshotJob, raw, 0, func(ctx context.Context) error {
		return a.store.SaveSnapshot(ctx, SnapshotSuffix(time.Now()))
	})
}

// SnapshotSuffix is the tag used for scheduled snapshots.
func SnapshotSuffix(t time.Time) string { return t.UTC().Format("20060102T150405Z") }

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// the scheduler first, so an in-flight publish can still commit
	a.step(ctx, "scheduler", a.stopTimeout+time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.sup.Cancel()
	a.step(ctx, "jobs", 3*time.Second, func(c context.Context) error { a.jobs.Stop(c); return nil })
	a.step(ctx, "metrics", time.Second, func(c context.Context) error { a.metricsSrv.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	a.log.Info("stopped")
	return a.Close()
}

// Close releases storage and logging. Stop calls it.
func (a *App) Close() error {
	err := a.backend.Close()
	if errors.Is(err, storage.ErrClosed) {
		err = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// step runs fn bounded by max and the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
