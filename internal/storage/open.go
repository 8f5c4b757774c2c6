package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/afero"

	logx "feedbot/pkg/logx"
)

// Backend persists the progress record. Implementations write the whole
// document on every Save; a failed Save leaves the previous version intact.
type Backend interface {
	// Load returns the stored record, or an empty record when nothing is stored yet.
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, r *Record) error
	// SaveSnapshot stores an extra copy tagged with suffix without touching the live record.
	SaveSnapshot(ctx context.Context, suffix string, r *Record) error
	Close() error
}

// Open initializes the configured backend. fs is used by the file driver only
// and defaults to the OS filesystem.
func Open(cfg Config, fs afero.Fs, log logx.Logger) (Backend, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" && strings.TrimSpace(cfg.Path) != "" {
		driver = "file"
	}

	switch driver {
	case "", "none", "memory":
		return NewMemory(), nil
	case "file", "json":
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return openFile(cfg, fs, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
