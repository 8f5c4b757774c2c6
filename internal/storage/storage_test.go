package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "feedbot/pkg/logx"
)

func sampleRecord() *Record {
	r := NewRecord()
	r.FeedIndex = 4
	r.TimesRerun = 1
	r.LastRerunIndex = 7
	r.IDToTitle["1001"] = "A"
	r.Items["A"] = &ItemStats{Favorites: 2, Retweets: 1, RTComments: []string{"nice"}}
	return r
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty is memory", cfg: Config{}},
		{name: "none", cfg: Config{Driver: "none"}},
		{name: "path implies file", cfg: Config{Path: "/data/progress.json"}},
		{name: "file without path", cfg: Config{Driver: "file"}, wantErr: true},
		{name: "unknown", cfg: Config{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(tt.cfg, afero.NewMemMapFs(), logx.Nop())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Open(%+v) expected error", tt.cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%+v) error: %v", tt.cfg, err)
			}
			_ = b.Close()
		})
	}
}

func TestFileLoadMissingIsEmpty(t *testing.T) {
	b, err := Open(Config{Driver: "file", Path: "/data/progress.json"}, afero.NewMemMapFs(), logx.Nop())
	require.NoError(t, err)

	r, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, r.FeedIndex)
	assert.NotNil(t, r.IDToTitle)
	assert.NotNil(t, r.Items)
}

func TestFileSaveRoundTripAndBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	b, err := Open(Config{Driver: "file", Path: "/data/progress.json"}, fs, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	first := sampleRecord()
	require.NoError(t, b.Save(ctx, first))

	second := sampleRecord()
	second.FeedIndex = 5
	require.NoError(t, b.Save(ctx, second))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.FeedIndex)
	assert.Equal(t, "A", got.IDToTitle["1001"])
	assert.Equal(t, []string{"nice"}, got.Items["A"].RTComments)

	bak, err := afero.ReadFile(fs, "/data/progress.json.bak")
	require.NoError(t, err)
	var prev Record
	require.NoError(t, json.Unmarshal(bak, &prev))
	assert.Equal(t, 4, prev.FeedIndex)

	raw, err := afero.ReadFile(fs, "/data/progress.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"feed_index": 5`)
	assert.Contains(t, string(raw), `"tweets"`)

	exists, err := afero.Exists(fs, "/data/progress.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	b, err := Open(Config{Driver: "file", Path: "/data/progress.json"}, fs, logx.Nop())
	require.NoError(t, err)

	require.NoError(t, b.SaveSnapshot(context.Background(), "week1", sampleRecord()))
	assert.Equal(t, "/data/progress_week1.json", SnapshotPath("/data/progress.json", "week1"))

	exists, err := afero.Exists(fs, "/data/progress_week1.json")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = afero.Exists(fs, "/data/progress.json")
	require.NoError(t, err)
	assert.False(t, exists, "snapshot must not touch the live record")
}

func TestFileClosed(t *testing.T) {
	b, err := Open(Config{Driver: "file", Path: "/p.json"}, afero.NewMemMapFs(), logx.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = b.Load(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Save(context.Background(), NewRecord()), ErrClosed)
}

func TestFileLoadAcceptsCommentsAndNullMaps(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `{
		// hand edited
		"feed_index": 3,
		"id_to_title": null,
		"tweets": {"A": null},
	}`
	require.NoError(t, afero.WriteFile(fs, "/p.json", []byte(doc), 0o600))
	b, err := Open(Config{Driver: "file", Path: "/p.json"}, fs, logx.Nop())
	require.NoError(t, err)

	r, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, r.FeedIndex)
	assert.NotNil(t, r.IDToTitle)
	require.NotNil(t, r.Items["A"])
	assert.Equal(t, 0, r.Items["A"].Score())
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	b, err := Open(Config{Driver: "sqlite", Path: path}, nil, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	r, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, r.FeedIndex)

	require.NoError(t, b.Save(ctx, sampleRecord()))
	rec := sampleRecord()
	rec.FeedIndex = 9
	require.NoError(t, b.Save(ctx, rec))
	require.NoError(t, b.SaveSnapshot(ctx, "s1", rec))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, got.FeedIndex)
	assert.Equal(t, 7, got.LastRerunIndex)
	assert.Equal(t, 3, got.Items["A"].Score())
}

func TestMemoryFailSaves(t *testing.T) {
	m := NewMemoryWith(sampleRecord())
	ctx := context.Background()
	boom := errors.New("disk full")

	m.FailSaves(boom)
	err := m.Save(ctx, NewRecord())
	assert.ErrorIs(t, err, boom)

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got.FeedIndex, "failed save keeps previous record")

	m.FailSaves(nil)
	require.NoError(t, m.Save(ctx, NewRecord()))
	assert.Equal(t, 1, m.Saves())
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := sampleRecord()
	c := r.Clone()
	c.Items["A"].Favorites = 99
	c.Items["A"].RTComments[0] = "changed"
	c.IDToTitle["2"] = "B"

	assert.Equal(t, 2, r.Items["A"].Favorites)
	assert.Equal(t, "nice", r.Items["A"].RTComments[0])
	assert.NotContains(t, r.IDToTitle, "2")
}
