package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
feed:
  path: ./feed.yaml
schedule:
  tweet_times: ["09:00", "20:15"]
  rand_deviation: 10m
  min_tweet_delay: 30s
  looping_max_times: 1
  timezone: UTC
functionality:
  online: true
  persist: true
storage:
  driver: sqlite
  path: ./data/feedbot.db
  snapshot_cron: "@daily"
telegram:
  channel: "@feedbot_test"
`

func newManager(t *testing.T, name, body string, env map[string]string) *ConfigManager {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	return NewConfigManager(name).WithFs(fs).WithEnv(func(k string) string { return env[k] })
}

func TestParseYAMLWithEnvToken(t *testing.T) {
	m := newManager(t, "config.yaml", sampleYAML, map[string]string{EnvTelegramToken: " 123:abc "})
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, []string{"09:00", "20:15"}, cfg.Schedule.TweetTimes)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Same(t, cfg, m.Get())
}

func TestParseExpandsEnvReferences(t *testing.T) {
	body := `
feed:
  path: ${FEED_DIR:-/srv/feedbot}/feed.json
functionality:
  online: true
telegram:
  channel: ${FEEDBOT_CHANNEL}
  token: ${FEEDBOT_TOKEN_FILE_UNUSED:-literal}
schedule:
  tweet_times: []
`
	env := map[string]string{"FEEDBOT_CHANNEL": "@from_env"}
	cfg, err := newManager(t, "config.yml", body, env).Parse()
	require.NoError(t, err)
	assert.Equal(t, "/srv/feedbot/feed.json", cfg.Feed.Path)
	assert.Equal(t, "@from_env", cfg.Telegram.Channel)
	assert.Equal(t, "literal", cfg.Telegram.Token)
}

func TestExpandEnvLeavesBareDollar(t *testing.T) {
	out := expandEnv([]byte(`"price $5 ${X}"`), func(k string) string { return "x" })
	assert.Equal(t, `"price $5 x"`, string(out))
}

func TestParseJSONWithComments(t *testing.T) {
	body := `{
	  // offline dry run
	  "feed": {"path": "feed.json"},
	  "schedule": {"tweet_times": []},
	  "functionality": {"online": false, "persist": false},
	}`
	cfg, err := newManager(t, "config.json", body, nil).Parse()
	require.NoError(t, err)
	assert.Equal(t, "feed.json", cfg.Feed.Path)
	assert.False(t, cfg.Functionality.Online)
}

func TestParseRejectsUnknownField(t *testing.T) {
	body := `{"feed": {"path": "f.json"}, "scheduler": {}}`
	_, err := newManager(t, "config.json", body, nil).Parse()
	require.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	body := `{"feed": {"path": "f.json"}} {"feed": {}}`
	_, err := newManager(t, "config.json", body, nil).Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Feed:     FeedConfig{Path: "feed.json"},
			Schedule: ScheduleConfig{TweetTimes: []string{"08:00"}, MinTweetDelay: "1s"},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"minimal", func(*Config) {}, true},
		{"missing feed", func(c *Config) { c.Feed.Path = "" }, false},
		{"component levels", func(c *Config) { c.Logging.Levels = map[string]string{"scheduler": "debug"} }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"bad component level", func(c *Config) { c.Logging.Levels = map[string]string{"feed": "chatty"} }, false},
		{"bad slot", func(c *Config) { c.Schedule.TweetTimes = []string{"25:00"} }, false},
		{"bad duration", func(c *Config) { c.Schedule.RandDeviation = "ten minutes" }, false},
		{"negative loops", func(c *Config) { c.Schedule.LoopingMaxTimes = -1 }, false},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, false},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, false},
		{"persist without path", func(c *Config) { c.Functionality.Persist = true }, false},
		{"bad snapshot cron", func(c *Config) { c.Storage.SnapshotCron = "sometimes" }, false},
		{"online without token", func(c *Config) {
			c.Functionality.Online = true
			c.Telegram.Channel = "@x"
		}, false},
		{"online complete", func(c *Config) {
			c.Functionality.Online = true
			c.Telegram.Channel = "@x"
			c.Telegram.Token = "t"
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestSummarizeConfigChangeHidesTokens(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "old", Channel: "@x"}}
	b := &Config{Telegram: TelegramConfig{Token: "new", Channel: "@x"}, Schedule: ScheduleConfig{TweetTimes: []string{"10:00"}}}
	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"schedule", "telegram"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"telegram"}, RequiresRestart(changed))

	changed, _ = SummarizeConfigChange(a, a)
	assert.Empty(t, changed)
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("x", " 90s ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseDurationField("x", "4")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, d)

	d, err = ParseDurationField("x", "0.5")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	d, err = ParseDurationField("x", "2d")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)

	for _, bad := range []string{"-1s", "-3", "xd", "soon"} {
		_, err = ParseDurationField("x", bad)
		require.Error(t, err, bad)
	}
}

func TestWatchPublishesChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	write := func(times string) {
		body := `{"feed": {"path": "f.json"}, "schedule": {"tweet_times": [` + times + `]}}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write(`"09:00"`)

	m := NewConfigManager(path).WithEnv(func(string) string { return "" })
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)
	write(`"09:00", "21:00"`)

	select {
	case cfg := <-sub:
		assert.Equal(t, []string{"09:00", "21:00"}, cfg.Schedule.TweetTimes)
	case <-time.After(5 * time.Second):
		t.Fatal("no config update published")
	}
}
