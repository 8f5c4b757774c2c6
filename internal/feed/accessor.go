package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	yaml "go.yaml.in/yaml/v3"

	logx "feedbot/pkg/logx"
)

// Accessor loads the feed on demand. It holds no item cache across calls;
// only the size of the last successful load is remembered.
type Accessor struct {
	fs   afero.Fs
	path string
	log  logx.Logger

	total atomic.Int64
}

func New(fs afero.Fs, path string, log logx.Logger) *Accessor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Accessor{fs: fs, path: strings.TrimSpace(path), log: log}
}

func (a *Accessor) Path() string { return a.path }

// TotalItems returns the item count seen by the most recent successful load (0 before any).
func (a *Accessor) TotalItems() int { return int(a.total.Load()) }

// All reloads and returns the whole feed.
func (a *Accessor) All() ([]Item, error) {
	return a.load()
}

// Run returns the item at from plus every chained successor.
// The result is a contiguous index range in which every item but the last chains.
func (a *Accessor) Run(from int) ([]Item, error) {
	items, err := a.load()
	if err != nil {
		return nil, err
	}
	if from < 0 || from >= len(items) {
		return nil, &LoadFeedError{Path: a.path, Index: from, Total: len(items)}
	}

	run := []Item{items[from]}
	for i := from; items[i].Chain && i+1 < len(items); i++ {
		run = append(run, items[i+1])
	}
	if len(run) > 1 {
		a.log.Debug("chain resolved", logx.Int("from", from), logx.Int("len", len(run)))
	}
	return run, nil
}

func (a *Accessor) load() ([]Item, error) {
	if a.path == "" {
		return nil, &LoadFeedError{Path: "(none given)", Index: -1, Err: errors.New("feed path is empty")}
	}
	b, err := afero.ReadFile(a.fs, a.path)
	if err != nil {
		return nil, &LoadFeedError{Path: a.path, Index: -1, Err: err}
	}
	raw, err := decode(a.path, b)
	if err != nil {
		return nil, &LoadFeedError{Path: a.path, Index: -1, Err: err}
	}

	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Title) == "" {
			return nil, &LoadFeedError{Path: a.path, Index: i, Total: len(raw), Err: fmt.Errorf("item %d has no title", i)}
		}
		items = append(items, r.item(i))
	}
	a.total.Store(int64(len(items)))
	return items, nil
}

// decode accepts YAML (by extension) or JSON with comments and trailing commas.
func decode(path string, b []byte) ([]rawItem, error) {
	var raw []rawItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("yaml unmarshal: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(b), &raw); err != nil {
			return nil, fmt.Errorf("json unmarshal: %w", err)
		}
	}
	return raw, nil
}
