package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON document on disk (default when Path is set)
//   - "sqlite": SQLite database file
//   - "memory" or "none": in-process only
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the durable progress document. Its JSON shape is the on-disk format.
type Record struct {
	FeedIndex      int                   `json:"feed_index"`
	IDToTitle      map[string]string     `json:"id_to_title"`
	Items          map[string]*ItemStats `json:"tweets"`
	TimesRerun     int                   `json:"times_rerun"`
	LastRerunIndex int                   `json:"last_rerun_index"`
}

// ItemStats holds the engagement counters of one published title.
type ItemStats struct {
	Favorites  int      `json:"favorites"`
	Retweets   int      `json:"retweets"`
	Requotes   int      `json:"requotes"`
	Replies    int      `json:"replies"`
	RTComments []string `json:"rt_comments"`
}

// Score sums the numeric counters.
func (s ItemStats) Score() int {
	return s.Favorites + s.Retweets + s.Requotes + s.Replies
}

// NewRecord returns an empty record with initialized maps.
func NewRecord() *Record {
	return &Record{IDToTitle: map[string]string{}, Items: map[string]*ItemStats{}}
}

// Normalize fills nil maps so a document written by older versions is usable.
func (r *Record) Normalize() *Record {
	if r == nil {
		return NewRecord()
	}
	if r.IDToTitle == nil {
		r.IDToTitle = map[string]string{}
	}
	if r.Items == nil {
		r.Items = map[string]*ItemStats{}
	}
	for k, v := range r.Items {
		if v == nil {
			r.Items[k] = &ItemStats{RTComments: []string{}}
		} else if v.RTComments == nil {
			v.RTComments = []string{}
		}
	}
	return r
}

// Clone deep-copies the record so callers can mutate a copy and swap on success.
func (r *Record) Clone() *Record {
	if r == nil {
		return NewRecord()
	}
	out := &Record{
		FeedIndex:      r.FeedIndex,
		TimesRerun:     r.TimesRerun,
		LastRerunIndex: r.LastRerunIndex,
		IDToTitle:      make(map[string]string, len(r.IDToTitle)),
		Items:          make(map[string]*ItemStats, len(r.Items)),
	}
	for k, v := range r.IDToTitle {
		out.IDToTitle[k] = v
	}
	for k, v := range r.Items {
		if v == nil {
			continue
		}
		cp := *v
		cp.RTComments = append([]string{}, v.RTComments...)
		out.Items[k] = &cp
	}
	return out
}
