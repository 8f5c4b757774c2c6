package config

// Config is the on-disk configuration. Durations are Go duration strings.
type Config struct {
	Logging       LoggingConfig       `json:"logging"`
	Feed          FeedConfig          `json:"feed"`
	Schedule      ScheduleConfig      `json:"schedule"`
	Functionality FunctionalityConfig `json:"functionality"`
	Storage       StorageConfig       `json:"storage"`
	Telegram      TelegramConfig      `json:"telegram"`
	Metrics       MetricsConfig       `json:"metrics,omitempty"`
	Jobs          JobsConfig          `json:"jobs,omitempty"`
}

// LoggingConfig selects sinks and levels. Levels overrides Level per
// component ("scheduler", "storage.sqlite", ...); a dotted component falls
// back to its parent.
type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFile       `json:"file"`
	Levels  map[string]string `json:"levels,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type FeedConfig struct {
	Path string `json:"path"`
}

// ScheduleConfig drives the publication scheduler.
//
// Example:
//
//	"schedule": {
//	  "tweet_times": ["09:00", "13:30", "20:15"],
//	  "rand_deviation": "10m",
//	  "min_tweet_delay": "30s",
//	  "looping_max_times": 1
//	}
type ScheduleConfig struct {
	TweetTimes      []string `json:"tweet_times"`
	RandDeviation   string   `json:"rand_deviation,omitempty"`
	RestPeriod      string   `json:"rest_period,omitempty"`
	MinTweetDelay   string   `json:"min_tweet_delay,omitempty"`
	LoopingMinScore int      `json:"looping_min_score,omitempty"`
	LoopingMaxTimes int      `json:"looping_max_times,omitempty"`
	Timezone        string   `json:"timezone,omitempty"`
	StopTimeout     string   `json:"stop_timeout,omitempty"`
}

// FunctionalityConfig toggles side effects. Online=false only logs what would
// be published; Persist=false keeps progress in memory.
type FunctionalityConfig struct {
	Online  bool `json:"online"`
	Persist bool `json:"persist"`
}

// StorageConfig selects the progress backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/feedbot.db", "snapshot_cron": "@daily" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`  // sqlite
	SnapshotCron string `json:"snapshot_cron,omitempty"` // empty disables periodic snapshots
}

type TelegramConfig struct {
	Token         string `json:"token,omitempty"` // FEEDBOT_TELEGRAM_TOKEN overrides
	Channel       string `json:"channel"`
	ParseMode     string `json:"parse_mode,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	CallTimeout   string `json:"call_timeout,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
//
// Binding to a non-loopback address needs a token or allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:9464"
	Path          string `json:"path,omitempty"` // default "/metrics"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// JobsConfig tunes the maintenance job runner.
type JobsConfig struct {
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}
