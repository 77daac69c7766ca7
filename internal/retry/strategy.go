package retry

import (
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Strategy returns how long to wait before retry number n (zero based), or true when the
// caller should give up.
type Strategy interface {
	Delay(n uint) (time.Duration, bool)
}

type Never struct{}

func (Never) Delay(uint) (time.Duration, bool) {
	return 0, true
}

type Jitter func(int64) int64

// Backoff doubles Base on every retry up to Max and stops after Retries retries. Jitter
// picks the actual delay in [0, d); nil means math/rand.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	Retries uint
	Jitter  Jitter
}

func (b Backoff) Delay(n uint) (time.Duration, bool) {
	if n >= b.Retries {
		return 0, true
	}

	limit := int64(b.Max)
	if limit <= 0 {
		limit = math.MaxInt64
	}

	d := limit
	if n < 63 && (b.Base == 0 || int64(1)<<n <= math.MaxInt64/int64(b.Base)) {
		d = atMost(int64(1)<<n*int64(b.Base), limit)
	}
	if d <= 0 {
		return 0, false
	}
	return time.Duration(b.jitter()(d)), false
}

func (b Backoff) jitter() Jitter {
	if b.Jitter == nil {
		return rand.Int63n
	}
	return b.Jitter
}

func atMost[T constraints.Ordered](v T, limit T) T {
	if v > limit {
		return limit
	}
	return v
}
