package scheduler

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"
)

var spreadSeq uint64

// newRand returns a generator seeded from the clock, a process-wide sequence and tag,
// so schedulers created in the same instant still diverge.
func newRand(tag string) *rand.Rand {
	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	return rand.New(rand.NewSource(seed))
}

// SampleJitter draws an offset uniformly from [-window, +window].
func SampleJitter(rng *rand.Rand, window time.Duration) time.Duration {
	if window <= 0 || rng == nil {
		return 0
	}
	return time.Duration(rng.Int63n(int64(2*window)+1)) - window
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
