package storage

import (
	"context"
	"sync"
)

// Memory keeps the record in process. Tests use it directly; it can also
// simulate write failures through FailSaves.
type Memory struct {
	mu        sync.Mutex
	rec       *Record
	snapshots map[string]*Record
	closed    bool
	saves     int

	failErr error
}

func NewMemory() *Memory {
	return &Memory{snapshots: map[string]*Record{}}
}

// NewMemoryWith seeds the backend with r.
func NewMemoryWith(r *Record) *Memory {
	m := NewMemory()
	m.rec = r.Clone().Normalize()
	return m
}

func (m *Memory) Load(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.rec == nil {
		return NewRecord(), nil
	}
	return m.rec.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.failErr != nil {
		return m.failErr
	}
	m.rec = r.Clone()
	m.saves++
	return nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, suffix string, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.failErr != nil {
		return m.failErr
	}
	m.snapshots[suffix] = r.Clone()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// FailSaves makes every following Save and SaveSnapshot return err (nil restores).
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Saves returns the number of successful Save calls.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Snapshot returns the snapshot stored under suffix.
func (m *Memory) Snapshot(suffix string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.snapshots[suffix]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}
