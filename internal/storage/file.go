package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"

	logx "feedbot/pkg/logx"
)

// fileStore keeps the record as one indented JSON document.
//
// Files:
//   - <path>                 live record
//   - <path>.bak             previous version, copied before every write
//   - <base>_<suffix><ext>   snapshots
//
// Writes go through <path>.tmp and a rename so a crash never leaves a torn document.
type fileStore struct {
	fs   afero.Fs
	path string
	log  logx.Logger

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, fs afero.Fs, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{fs: fs, path: path, log: log.With(logx.String("driver", "file"))}, nil
}

func (s *fileStore) Load(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRecord(), nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return NewRecord(), nil
	}
	var r Record
	if err := json.Unmarshal(jsonc.ToJSON(b), &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return r.Normalize(), nil
}

func (s *fileStore) Save(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.backupLocked(); err != nil {
		s.log.Warn("backup failed", logx.Err(err))
	}
	return s.writeLocked(s.path, r)
}

func (s *fileStore) SaveSnapshot(ctx context.Context, suffix string, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeLocked(SnapshotPath(s.path, suffix), r)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// SnapshotPath returns <base>_<suffix><ext> next to path.
func SnapshotPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}

func (s *fileStore) backupLocked() error {
	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.path+".bak", b, 0o600)
}

func (s *fileStore) writeLocked(path string, r *Record) error {
	b, err := json.MarshalIndent(r.Clone().Normalize(), "", "    ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o600); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}
