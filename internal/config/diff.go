package config

import (
	"reflect"
	"sort"
	"strings"

	logx "feedbot/pkg/logx"
)

// SummarizeConfigChange lists the changed sections plus log fields that are
// safe to print. Tokens are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Int("logging.levels", len(newCfg.Logging.Levels)),
		)
	}

	if strings.TrimSpace(oldCfg.Feed.Path) != strings.TrimSpace(newCfg.Feed.Path) {
		changed = append(changed, "feed")
		attrs = append(attrs, logx.String("feed.path", newCfg.Feed.Path))
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		s := newCfg.Schedule
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.tweet_times", strings.Join(s.TweetTimes, ",")),
			logx.String("schedule.rand_deviation", s.RandDeviation),
			logx.String("schedule.min_tweet_delay", s.MinTweetDelay),
			logx.String("schedule.rest_period", s.RestPeriod),
			logx.Int("schedule.looping_max_times", s.LoopingMaxTimes),
			logx.Int("schedule.looping_min_score", s.LoopingMinScore),
			logx.String("schedule.timezone", s.Timezone),
		)
	}

	if oldCfg.Functionality != newCfg.Functionality {
		changed = append(changed, "functionality")
		attrs = append(attrs,
			logx.Bool("functionality.online", newCfg.Functionality.Online),
			logx.Bool("functionality.persist", newCfg.Functionality.Persist),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.snapshot_cron", newCfg.Storage.SnapshotCron),
		)
	}

	oT, nT := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := oT.Token != nT.Token
	oT.Token, nT.Token = "", ""
	if tokenChanged || oT != nT {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.String("telegram.channel", nT.Channel),
			logx.Int("telegram.rate_per_sec", nT.RatePerSec),
			logx.Int("telegram.retry_max", nT.RetryMax),
		)
	}

	oM, nM := oldCfg.Metrics, newCfg.Metrics
	oM.Token, nM.Token = "", ""
	if oM != nM || oldCfg.Metrics.Token != newCfg.Metrics.Token {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", nM.Enabled),
			logx.String("metrics.addr", nM.Addr),
			logx.Bool("metrics.token_set", strings.TrimSpace(newCfg.Metrics.Token) != ""),
			logx.Bool("metrics.pprof", nM.Pprof),
		)
	}

	if oldCfg.Jobs != newCfg.Jobs {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.String("jobs.default_timeout", newCfg.Jobs.DefaultTimeout),
			logx.Int("jobs.retry_max", newCfg.Jobs.RetryMax),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRestart reports sections whose change only applies after a restart.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "feed", "functionality", "storage", "telegram":
			out = append(out, c)
		}
	}
	return out
}
