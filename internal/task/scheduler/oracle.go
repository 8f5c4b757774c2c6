package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Slot is a daily time of day.
type Slot struct {
	Hour   int
	Minute int
}

func (s Slot) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

// ParseSlots parses "HH:MM" entries ("9:05" is accepted) and returns them sorted.
func ParseSlots(raw []string) ([]Slot, error) {
	out := make([]Slot, 0, len(raw))
	for _, r := range raw {
		h, m, err := parseHHMM(r)
		if err != nil {
			return nil, err
		}
		out = append(out, Slot{Hour: h, Minute: m})
	}
	return sortSlots(out), nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

func sortSlots(in []Slot) []Slot {
	out := append([]Slot(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out
}

// NextFire returns the next instant to fire, always strictly after now.
//
// Without slots it returns now + minDelay/5 (at least 1ms). Otherwise jitter
// shifts the reference once (ref = now - jitter), the first slot strictly
// after ref is taken on ref's date (or the next day when ref is past the last
// slot) and jitter is added back. Slots are evaluated in now's location.
func NextFire(now time.Time, slots []Slot, jitter, minDelay time.Duration) time.Time {
	if len(slots) == 0 {
		d := minDelay / 5
		if d < time.Millisecond {
			d = time.Millisecond
		}
		return now.Add(d)
	}
	sorted := sortSlots(slots)
	ref := now.Add(-jitter)
	y, m, d := ref.Date()
	loc := ref.Location()

	last := sorted[len(sorted)-1]
	if !ref.Before(time.Date(y, m, d, last.Hour, last.Minute, 0, 0, loc)) {
		d++
	}
	for _, s := range sorted {
		at := time.Date(y, m, d, s.Hour, s.Minute, 0, 0, loc)
		if at.After(ref) {
			return at.Add(jitter)
		}
	}
	// Only reachable across a DST fold; fall back to the first slot a day later.
	first := sorted[0]
	return time.Date(y, m, d+1, first.Hour, first.Minute, 0, 0, loc).Add(jitter)
}

// Preview lists the next n slot instants after now without jitter.
func Preview(now time.Time, slots []Slot, n int) []time.Time {
	if len(slots) == 0 || n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	at := now
	for i := 0; i < n; i++ {
		at = NextFire(at, slots, 0, 0)
		out = append(out, at)
	}
	return out
}
