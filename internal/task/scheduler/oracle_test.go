package scheduler

import (
	"math/rand"
	"testing"
	"time"
)

func TestParseSlots(t *testing.T) {
	t.Parallel()
	got, err := ParseSlots([]string{"21:30", "9:05", "12:00"})
	if err != nil {
		t.Fatalf("ParseSlots error: %v", err)
	}
	want := []Slot{{9, 5}, {12, 0}, {21, 30}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"24:00", "12:60", "noon", "12:5", ""} {
		if _, err := ParseSlots([]string{bad}); err == nil {
			t.Fatalf("ParseSlots(%q) expected error", bad)
		}
	}
}

func TestNextFireEmptySlots(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if got := NextFire(now, nil, 0, 100*time.Millisecond); !got.Equal(now.Add(20 * time.Millisecond)) {
		t.Fatalf("NextFire = %v, want now+20ms", got)
	}
	if got := NextFire(now, nil, 0, 0); !got.After(now) {
		t.Fatalf("NextFire with zero delay = %v, want > now", got)
	}
}

func TestNextFireSlots(t *testing.T) {
	t.Parallel()
	slots := []Slot{{9, 0}, {13, 0}, {18, 30}}
	day := func(d, h, m int) time.Time { return time.Date(2024, 3, d, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "before first", now: day(1, 7, 0), want: day(1, 9, 0)},
		{name: "between", now: day(1, 10, 0), want: day(1, 13, 0)},
		{name: "exactly on slot", now: day(1, 13, 0), want: day(1, 18, 30)},
		{name: "after last", now: day(1, 19, 0), want: day(2, 9, 0)},
		{name: "on last", now: day(1, 18, 30), want: day(2, 9, 0)},
		{name: "month end", now: time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), want: day(1, 9, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := NextFire(tt.now, slots, 0, 0); !got.Equal(tt.want) {
				t.Fatalf("NextFire(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNextFireJitterAppliedOnce(t *testing.T) {
	t.Parallel()
	slots := []Slot{{12, 0}}
	now := time.Date(2024, 3, 1, 11, 58, 0, 0, time.UTC)

	// +5m: reference 11:53, slot 12:00, result 12:05
	if got := NextFire(now, slots, 5*time.Minute, 0); !got.Equal(time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("positive jitter = %v", got)
	}
	// -5m: reference 12:03 is past the slot, next day 12:00 - 5m
	if got := NextFire(now, slots, -5*time.Minute, 0); !got.Equal(time.Date(2024, 3, 2, 11, 55, 0, 0, time.UTC)) {
		t.Fatalf("negative jitter = %v", got)
	}
}

func TestNextFireAlwaysAfterNow(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(5)
		raw := make([]Slot, n)
		for j := range raw {
			raw[j] = Slot{Hour: rng.Intn(24), Minute: rng.Intn(60)}
		}
		now := base.Add(time.Duration(rng.Int63n(int64(400 * 24 * time.Hour))))
		jitter := SampleJitter(rng, 30*time.Minute)
		if got := NextFire(now, raw, jitter, time.Second); !got.After(now) {
			t.Fatalf("NextFire(%v, %v, %v) = %v, not after now", now, raw, jitter, got)
		}
	}
}

func TestSampleJitterWithinWindow(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		j := SampleJitter(rng, time.Minute)
		if j < -time.Minute || j > time.Minute {
			t.Fatalf("jitter %v outside window", j)
		}
	}
	if j := SampleJitter(rng, 0); j != 0 {
		t.Fatalf("zero window jitter = %v", j)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	got := Preview(now, []Slot{{9, 0}, {12, 0}}, 3)
	want := []time.Time{
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("preview[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if Preview(now, nil, 3) != nil {
		t.Fatal("preview without slots should be nil")
	}
}
