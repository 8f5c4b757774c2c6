package app

import (
	"strings"
	"time"

	"feedbot/internal/config"
	"feedbot/internal/observability/metrics"
	"feedbot/internal/publish"
	"feedbot/internal/storage"
	"feedbot/internal/task/cronjob"
	"feedbot/internal/task/scheduler"
	logx "feedbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Levels: cfg.Logging.Levels,
	}
}

func mapTiming(cfg *config.Config) (scheduler.Timing, error) {
	s := cfg.Schedule
	slots, err := scheduler.ParseSlots(s.TweetTimes)
	if err != nil {
		return scheduler.Timing{}, err
	}
	dev, err := config.ParseDurationField("schedule.rand_deviation", s.RandDeviation)
	if err != nil {
		return scheduler.Timing{}, err
	}
	rest, err := config.ParseDurationField("schedule.rest_period", s.RestPeriod)
	if err != nil {
		return scheduler.Timing{}, err
	}
	minDelay, err := config.ParseDurationField("schedule.min_tweet_delay", s.MinTweetDelay)
	if err != nil {
		return scheduler.Timing{}, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return scheduler.Timing{}, err
		}
	}
	return scheduler.Timing{
		Slots:      slots,
		Deviation:  dev,
		RestPeriod: rest,
		MinDelay:   minDelay,
		MinScore:   s.LoopingMinScore,
		MaxReruns:  s.LoopingMaxTimes,
		Location:   loc,
	}, nil
}

// mapStorageConfig returns the in-memory driver when persistence is off.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if !cfg.Functionality.Persist {
		return storage.Config{Driver: "memory"}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapRetryConfig(cfg *config.Config) (publish.RetryConfig, error) {
	t := cfg.Telegram
	base, err := config.ParseDurationOrDefault("telegram.retry_base", t.RetryBase, time.Second)
	if err != nil {
		return publish.RetryConfig{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("telegram.retry_max_delay", t.RetryMaxDelay, 30*time.Second)
	if err != nil {
		return publish.RetryConfig{}, err
	}
	call, err := config.ParseDurationField("telegram.call_timeout", t.CallTimeout)
	if err != nil {
		return publish.RetryConfig{}, err
	}
	retryMax := t.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}
	rps := float64(t.RatePerSec)
	if rps == 0 {
		rps = 1
	}
	return publish.RetryConfig{
		RatePerSec:    rps,
		RetryMax:      retryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		CallTimeout:   call,
	}, nil
}

func mapMetricsConfig(cfg *config.Config) (metrics.Config, error) {
	m := cfg.Metrics
	out := metrics.Config{
		Enabled:       m.Enabled,
		Addr:          strings.TrimSpace(m.Addr),
		Path:          m.Path,
		Token:         strings.TrimSpace(m.Token),
		AllowInsecure: m.AllowInsecure,
		Pprof:         m.Pprof,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("metrics.read_timeout", m.ReadTimeout, 10*time.Second); err != nil {
		return metrics.Config{}, err
	}
	// 0 keeps long pprof profiles working
	if out.WriteTimeout, err = config.ParseDurationField("metrics.write_timeout", m.WriteTimeout); err != nil {
		return metrics.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("metrics.idle_timeout", m.IdleTimeout, 60*time.Second); err != nil {
		return metrics.Config{}, err
	}
	return out, nil
}

func mapJobsConfig(cfg *config.Config) (cronjob.Config, error) {
	timeout, err := config.ParseDurationOrDefault("jobs.default_timeout", cfg.Jobs.DefaultTimeout, time.Minute)
	if err != nil {
		return cronjob.Config{}, err
	}
	return cronjob.Config{
		Timezone:       cfg.Schedule.Timezone,
		DefaultTimeout: timeout,
		HistorySize:    cfg.Jobs.HistorySize,
		RetryMax:       cfg.Jobs.RetryMax,
	}, nil
}

func stopTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("schedule.stop_timeout", cfg.Schedule.StopTimeout, scheduler.DefaultStopTimeout)
	if err != nil {
		return scheduler.DefaultStopTimeout
	}
	return d
}
