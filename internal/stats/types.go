package stats

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyRegistered = errors.New("item already registered")
	ErrUnregistered      = errors.New("item not registered")
	ErrNegativeIndex     = errors.New("feed index must not be negative")
)

// Counter names a numeric engagement counter.
type Counter int

const (
	Favorites Counter = iota
	Retweets
	Requotes
	Replies
)

func (c Counter) String() string {
	switch c {
	case Favorites:
		return "favorites"
	case Retweets:
		return "retweets"
	case Requotes:
		return "requotes"
	case Replies:
		return "replies"
	default:
		return fmt.Sprintf("counter(%d)", int(c))
	}
}

// ParseCounter accepts the persisted counter names, case-insensitive.
func ParseCounter(s string) (Counter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "favorites", "favorite", "likes":
		return Favorites, nil
	case "retweets", "retweet", "reposts":
		return Retweets, nil
	case "requotes", "requote", "quotes":
		return Requotes, nil
	case "replies", "reply":
		return Replies, nil
	default:
		return 0, fmt.Errorf("unknown counter %q", s)
	}
}

// Progress is the cursor persisted after every fired task.
type Progress struct {
	FeedIndex      int
	TimesRerun     int
	LastRerunIndex int
}

func (p Progress) validate() error {
	if p.FeedIndex < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeIndex, p.FeedIndex)
	}
	if p.TimesRerun < 0 {
		return fmt.Errorf("times rerun must not be negative: %d", p.TimesRerun)
	}
	return nil
}

// Ranked is one row of Top.
type Ranked struct {
	Title string
	Score int
}
