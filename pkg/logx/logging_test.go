package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestComponentLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "feedbot.log")
	svc, root := New(Config{
		Level:  "info",
		File:   FileConfig{Enabled: true, Path: path},
		Levels: map[string]string{"scheduler": "debug", "storage": "error"},
	})
	defer svc.Close()

	root.Named("scheduler").Debug("armed")
	root.Named("feed").Debug("loaded")
	root.Named("storage").Named("sqlite").Warn("busy")
	root.Named("storage").Named("sqlite").Error("locked")
	root.Info("plain")

	out := readLog(t, path)
	assert.Contains(t, out, `"message":"armed"`)
	assert.NotContains(t, out, "loaded")
	assert.NotContains(t, out, "busy")
	assert.Contains(t, out, `"comp":"storage.sqlite"`)
	assert.Contains(t, out, `"message":"plain"`)

	assert.True(t, root.Named("scheduler").Enabled(LevelDebug))
	assert.False(t, root.Named("feed").Enabled(LevelDebug))
}

func TestApplyKeepsFileAndSwapsLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedbot.log")
	cfg := Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}}
	svc, root := New(cfg)
	defer svc.Close()
	log := root.Named("app")

	log.Info("before")
	cfg.Level = "debug"
	svc.Apply(cfg)
	log.Debug("after")

	out := readLog(t, path)
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNamedAndZero(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Info("dropped")

	l := zero.Named("a").Named("b").Named(" ")
	assert.False(t, l.IsZero())
	assert.Equal(t, "a.b", l.Component())
}
