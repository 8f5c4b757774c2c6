package feed

import (
	"errors"
	"fmt"
)

// ErrLoadFeed matches every *LoadFeedError via errors.Is.
var ErrLoadFeed = errors.New("load feed")

// LoadFeedError reports a feed that could not be read or an index outside it.
type LoadFeedError struct {
	Path  string
	Index int // -1 when the failure is not index related
	Total int
	Err   error
}

func (e *LoadFeedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load feed %s: index %d out of range (total %d)", e.Path, e.Index, e.Total)
	}
	return fmt.Sprintf("load feed %s: %v", e.Path, e.Err)
}

func (e *LoadFeedError) Unwrap() error { return e.Err }

func (e *LoadFeedError) Is(target error) bool { return target == ErrLoadFeed }

// Item is one publishable feed entry. Values are immutable per read.
type Item struct {
	Index int    `json:"-"`
	Title string `json:"title"`
	Text  string `json:"text"`
	Chain bool   `json:"chain"`
	Rerun bool   `json:"rerun"`
}

// rawItem keeps optional booleans distinguishable from explicit false.
type rawItem struct {
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
	Chain *bool  `json:"chain,omitempty" yaml:"chain,omitempty"`
	Rerun *bool  `json:"rerun,omitempty" yaml:"rerun,omitempty"`
}

func (r rawItem) item(idx int) Item {
	it := Item{Index: idx, Title: r.Title, Text: r.Text, Rerun: true}
	if r.Chain != nil {
		it.Chain = *r.Chain
	}
	if r.Rerun != nil {
		it.Rerun = *r.Rerun
	}
	return it
}
