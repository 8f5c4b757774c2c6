package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"feedbot/internal/storage"
	logx "feedbot/pkg/logx"
)

// Store owns the progress record. One scheduler and any number of event
// handlers may share it.
type Store struct {
	backend storage.Backend
	log     logx.Logger

	mu  sync.Mutex
	rec *storage.Record // nil until loaded
}

func New(backend storage.Backend, log logx.Logger) *Store {
	if backend == nil {
		backend = storage.NewMemory()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{backend: backend, log: log}
}

// MarkDirty drops the loaded record; the next access reloads it from the backend.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()
}

func (s *Store) ensureLocked(ctx context.Context) error {
	if s.rec != nil {
		return nil
	}
	r, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	s.rec = r.Normalize()
	s.log.Debug("progress loaded",
		logx.Int("feed_index", s.rec.FeedIndex),
		logx.Int("items", len(s.rec.Items)),
		logx.Int("times_rerun", s.rec.TimesRerun),
	)
	return nil
}

func (s *Store) read(ctx context.Context, fn func(r *storage.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return err
	}
	fn(s.rec)
	return nil
}

// mutate applies fn to a copy, writes it and swaps it in only on success.
// fn returning errSkipWrite leaves everything untouched without error.
func (s *Store) mutate(ctx context.Context, fn func(r *storage.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return err
	}
	next := s.rec.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errSkipWrite) {
			return nil
		}
		return err
	}
	if err := s.backend.Save(ctx, next); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	s.rec = next
	return nil
}

var errSkipWrite = errors.New("skip write")

func (s *Store) FeedIndex(ctx context.Context) (int, error) {
	var n int
	err := s.read(ctx, func(r *storage.Record) { n = r.FeedIndex })
	return n, err
}

func (s *Store) SetFeedIndex(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeIndex, n)
	}
	return s.mutate(ctx, func(r *storage.Record) error {
		r.FeedIndex = n
		return nil
	})
}

func (s *Store) Progress(ctx context.Context) (Progress, error) {
	var p Progress
	err := s.read(ctx, func(r *storage.Record) {
		p = Progress{FeedIndex: r.FeedIndex, TimesRerun: r.TimesRerun, LastRerunIndex: r.LastRerunIndex}
	})
	return p, err
}

// Commit writes the feed index and rerun bookkeeping in one write.
func (s *Store) Commit(ctx context.Context, p Progress) error {
	if err := p.validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(r *storage.Record) error {
		r.FeedIndex = p.FeedIndex
		r.TimesRerun = p.TimesRerun
		r.LastRerunIndex = p.LastRerunIndex
		return nil
	})
}

// Register creates zeroed counters for title and maps externalID to it.
// An existing block is left unchanged and ErrAlreadyRegistered returned.
func (s *Store) Register(ctx context.Context, externalID, title string) error {
	return s.mutate(ctx, func(r *storage.Record) error {
		if _, ok := r.Items[title]; ok {
			return fmt.Errorf("%w: %q", ErrAlreadyRegistered, title)
		}
		r.Items[title] = &storage.ItemStats{RTComments: []string{}}
		if externalID != "" {
			r.IDToTitle[externalID] = title
		}
		return nil
	})
}

// Link maps another external id (a rerun repost) to an already registered title.
func (s *Store) Link(ctx context.Context, externalID, title string) error {
	return s.mutate(ctx, func(r *storage.Record) error {
		if _, ok := r.Items[title]; !ok {
			return fmt.Errorf("%w: %q", ErrUnregistered, title)
		}
		if externalID == "" || r.IDToTitle[externalID] == title {
			return errSkipWrite
		}
		r.IDToTitle[externalID] = title
		return nil
	})
}

// Modify adds delta to counter of the item named by title or external id.
// Unknown items are logged and ignored.
func (s *Store) Modify(ctx context.Context, key string, counter Counter, delta int) error {
	return s.mutate(ctx, func(r *storage.Record) error {
		st, title := resolve(r, key)
		if st == nil {
			s.log.Warn("modify on unregistered item", logx.String("key", key), logx.String("counter", counter.String()))
			return errSkipWrite
		}
		switch counter {
		case Favorites:
			st.Favorites += delta
		case Retweets:
			st.Retweets += delta
		case Requotes:
			st.Requotes += delta
		case Replies:
			st.Replies += delta
		default:
			return fmt.Errorf("modify %q: unknown %s", title, counter)
		}
		return nil
	})
}

// AppendComment records a quote comment for the item named by title or external id.
func (s *Store) AppendComment(ctx context.Context, key, comment string) error {
	return s.mutate(ctx, func(r *storage.Record) error {
		st, _ := resolve(r, key)
		if st == nil {
			s.log.Warn("comment on unregistered item", logx.String("key", key))
			return errSkipWrite
		}
		st.RTComments = append(st.RTComments, comment)
		return nil
	})
}

// Lookup returns a copy of the counters of the item named by title or external id.
func (s *Store) Lookup(ctx context.Context, key string) (storage.ItemStats, bool, error) {
	var (
		out storage.ItemStats
		ok  bool
	)
	err := s.read(ctx, func(r *storage.Record) {
		st, _ := resolve(r, key)
		if st == nil {
			return
		}
		out = *st
		out.RTComments = append([]string{}, st.RTComments...)
		ok = true
	})
	return out, ok, err
}

// Score is favorites + retweets + requotes + replies, 0 for unknown titles.
func (s *Store) Score(ctx context.Context, title string) (int, error) {
	var n int
	err := s.read(ctx, func(r *storage.Record) {
		if st := r.Items[title]; st != nil {
			n = st.Score()
		}
	})
	return n, err
}

// Top returns up to n titles ordered by score, highest first.
func (s *Store) Top(ctx context.Context, n int) ([]Ranked, error) {
	var out []Ranked
	err := s.read(ctx, func(r *storage.Record) {
		out = make([]Ranked, 0, len(r.Items))
		for title, st := range r.Items {
			out = append(out, Ranked{Title: title, Score: st.Score()})
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Title < out[j].Title
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Record returns a copy of the whole record.
func (s *Store) Record(ctx context.Context) (*storage.Record, error) {
	var out *storage.Record
	err := s.read(ctx, func(r *storage.Record) { out = r.Clone() })
	return out, err
}

// SaveSnapshot stores a separately named copy; the live record is untouched.
func (s *Store) SaveSnapshot(ctx context.Context, suffix string) error {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return errors.New("snapshot suffix is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return err
	}
	if err := s.backend.SaveSnapshot(ctx, suffix, s.rec); err != nil {
		return fmt.Errorf("save snapshot %q: %w", suffix, err)
	}
	s.log.Info("snapshot saved", logx.String("suffix", suffix))
	return nil
}

func resolve(r *storage.Record, key string) (*storage.ItemStats, string) {
	title := key
	if t, ok := r.IDToTitle[key]; ok {
		title = t
	}
	st := r.Items[title]
	return st, title
}
