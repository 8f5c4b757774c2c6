package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbot/internal/task/cronjob"
	"feedbot/internal/task/scheduler"
)

// Validate checks every field that would otherwise fail later at wiring time.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !knownLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	for comp, lvl := range cfg.Logging.Levels {
		if strings.TrimSpace(comp) == "" || !knownLevel(lvl) {
			add(fmt.Errorf("logging.levels[%q]: unknown level %q", comp, lvl))
		}
	}

	if strings.TrimSpace(cfg.Feed.Path) == "" {
		add(errors.New("feed.path: required"))
	}

	s := cfg.Schedule
	if _, err := scheduler.ParseSlots(s.TweetTimes); err != nil {
		add(fmt.Errorf("schedule.tweet_times: %w", err))
	}
	for path, raw := range map[string]string{
		"schedule.rand_deviation":  s.RandDeviation,
		"schedule.rest_period":     s.RestPeriod,
		"schedule.min_tweet_delay": s.MinTweetDelay,
		"schedule.stop_timeout":    s.StopTimeout,
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"telegram.retry_base":      cfg.Telegram.RetryBase,
		"telegram.retry_max_delay": cfg.Telegram.RetryMaxDelay,
		"telegram.call_timeout":    cfg.Telegram.CallTimeout,
		"metrics.read_timeout":     cfg.Metrics.ReadTimeout,
		"metrics.write_timeout":    cfg.Metrics.WriteTimeout,
		"metrics.idle_timeout":     cfg.Metrics.IdleTimeout,
		"jobs.default_timeout":     cfg.Jobs.DefaultTimeout,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	if s.LoopingMinScore < 0 {
		add(errors.New("schedule.looping_min_score: must be >= 0"))
	}
	if s.LoopingMaxTimes < 0 {
		add(errors.New("schedule.looping_max_times: must be >= 0"))
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("schedule.timezone: %w", err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory", "file", "json", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Functionality.Persist && strings.TrimSpace(cfg.Storage.Path) == "" {
		add(errors.New("storage.path: required when functionality.persist is true"))
	}
	if raw := strings.TrimSpace(cfg.Storage.SnapshotCron); raw != "" {
		if _, err := cronjob.ParseSpec(raw); err != nil {
			add(fmt.Errorf("storage.snapshot_cron: %w", err))
		}
	}

	if cfg.Functionality.Online {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			add(fmt.Errorf("telegram.token: required when online (or set %s)", EnvTelegramToken))
		}
		if strings.TrimSpace(cfg.Telegram.Channel) == "" {
			add(errors.New("telegram.channel: required when online"))
		}
	}
	if cfg.Telegram.RatePerSec < 0 || cfg.Telegram.RetryMax < 0 {
		add(errors.New("telegram: rate_per_sec and retry_max must be >= 0"))
	}

	return errors.Join(errs...)
}

func knownLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
