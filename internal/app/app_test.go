package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbot/internal/config"
	"feedbot/internal/publish"
)

const testConfig = `
logging:
  level: error
feed:
  path: /feedbot/feed.json
schedule:
  tweet_times: []
  min_tweet_delay: 50ms
  stop_timeout: 1s
functionality:
  online: true
  persist: true
storage:
  driver: file
  path: /feedbot/progress.json
telegram:
  channel: "@feedbot_test"
`

const testFeed = `[
  {"title": "A", "text": "a"},
  {"title": "B", "text": "b", "chain": true},
  {"title": "C", "text": "c"},
]`

type recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *recorder) Publish(_ context.Context, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return "msg-" + text, nil
}

func (r *recorder) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func newTestApp(t *testing.T, cfgBody, feedBody string, pub publish.Publisher) (*App, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/feedbot/config.yaml", []byte(cfgBody), 0o644))
	if feedBody != "" {
		require.NoError(t, afero.WriteFile(fs, "/feedbot/feed.json", []byte(feedBody), 0o644))
	}
	env := map[string]string{config.EnvTelegramToken: "123:test"}
	a, err := New("/feedbot/config.yaml", WithFs(fs), WithPublisher(pub), WithEnv(func(k string) string { return env[k] }))
	require.NoError(t, err)
	return a, fs
}

func TestAppPublishesWholeFeed(t *testing.T) {
	pub := &recorder{}
	a, fs := newTestApp(t, testConfig, testFeed, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		p, err := a.Store().Progress(ctx)
		return err == nil && p.FeedIndex == 3
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSIGTERM))

	assert.Equal(t, []string{"a", "b", "c"}, pub.published())

	raw, err := afero.ReadFile(fs, "/feedbot/progress.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"feed_index": 3`)
	assert.Contains(t, string(raw), `"msg-b": "B"`)
}

func TestAppStaysUpWhenFeedCannotBeScheduled(t *testing.T) {
	cases := []struct {
		name string
		feed string
	}{
		{"missing", ""},
		{"malformed", `[{"title": `},
		{"empty", `[]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &recorder{}
			a, _ := newTestApp(t, testConfig, tc.feed, pub)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			require.NoError(t, a.Start(ctx))
			assert.False(t, a.Scheduler().IsRunning())

			select {
			case <-a.Done():
				t.Fatalf("app stopped: %v", a.Err())
			case <-time.After(100 * time.Millisecond):
			}
			assert.NoError(t, a.Err())

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			require.NoError(t, a.Stop(stopCtx, StopSIGTERM))
			assert.Empty(t, pub.published())
		})
	}
}

func TestAppStatusAndSnapshot(t *testing.T) {
	a, fs := newTestApp(t, testConfig, testFeed, &recorder{})
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Store().Register(ctx, "m1", "A"))
	st, err := a.Status(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, st.FeedItems)
	assert.NoError(t, st.FeedErr)
	assert.True(t, st.Online)
	assert.Equal(t, 0, st.Progress.FeedIndex)
	require.Len(t, st.Top, 1)
	assert.Empty(t, st.NextSlots)

	require.NoError(t, a.SaveSnapshot(ctx, "manual"))
	ok, err := afero.Exists(fs, "/feedbot/progress_manual.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMapTiming(t *testing.T) {
	cfg := &config.Config{Schedule: config.ScheduleConfig{
		TweetTimes:      []string{"20:00", "08:30"},
		RandDeviation:   "5m",
		MinTweetDelay:   "2s",
		LoopingMaxTimes: 2,
		LoopingMinScore: 4,
		Timezone:        "UTC",
	}}
	tm, err := mapTiming(cfg)
	require.NoError(t, err)
	require.Len(t, tm.Slots, 2)
	assert.Equal(t, "08:30", tm.Slots[0].String())
	assert.Equal(t, 5*time.Minute, tm.Deviation)
	assert.Equal(t, 2*time.Second, tm.MinDelay)
	assert.Equal(t, 2, tm.MaxReruns)
	assert.Equal(t, 4, tm.MinScore)
	assert.Equal(t, time.UTC, tm.Location)

	now := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	cfg.Schedule.RandDeviation = ""
	a := &App{cfgm: config.NewConfigManager("unused")}
	a.cfgm.Commit(cfg)
	got, err := a.Preview(now, 2)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 20, 0, 0, 0, time.UTC),
	}, got)
}

func TestMapStorageConfigWithoutPersist(t *testing.T) {
	sc, err := mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "sqlite", Path: "x.db"}})
	require.NoError(t, err)
	assert.Equal(t, "memory", sc.Driver)
}

func TestInspectOnlySkipsPublisher(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/feedbot/config.yaml", []byte(testConfig), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/feedbot/feed.json", []byte(testFeed), 0o644))
	env := map[string]string{config.EnvTelegramToken: "123:test"}

	a, err := New("/feedbot/config.yaml", WithFs(fs), InspectOnly(), WithEnv(func(k string) string { return env[k] }))
	require.NoError(t, err)
	defer a.Close()

	st, err := a.Status(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, st.FeedItems)
	assert.True(t, st.Online)
}
