// Package pacing provides the sleeping and jitter primitives used for retry
// backoff and politeness delays. Sleeping goes through a Sleeper so callers
// can substitute a recorder in tests.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

type Sleeper interface {
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recorder is a Sleeper that returns immediately and remembers every request.
type Recorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns a copy of the recorded durations in call order.
func (r *Recorder) Sleeps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.sleeps))
	copy(out, r.sleeps)
	return out
}

// Total is the sum of all recorded durations.
func (r *Recorder) Total() time.Duration {
	var total time.Duration
	for _, d := range r.Sleeps() {
		total += d
	}
	return total
}

// Jitter draws uniform random durations. It is safe for concurrent use.
type Jitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewJitter() *Jitter {
	return &Jitter{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededJitter returns a deterministic Jitter.
func NewSeededJitter(seed uint64) *Jitter {
	return &Jitter{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Uniform returns a duration in [lo, hi]. If hi <= lo it returns lo.
func (j *Jitter) Uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return lo + time.Duration(j.rng.Int64N(int64(hi-lo)+1))
}

// Intn returns a value in [0, n).
func (j *Jitter) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.IntN(n)
}

// Delay is a bounded random pause between requests.
type Delay struct {
	Min, Max time.Duration
	Jitter   *Jitter
	Sleeper  Sleeper
}

// Wait sleeps for a uniform duration in [Min, Max].
func (d Delay) Wait(ctx context.Context) error {
	if d.Max <= 0 && d.Min <= 0 {
		return nil
	}
	jitter := d.Jitter
	if jitter == nil {
		jitter = NewJitter()
	}
	sleeper := d.Sleeper
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	return sleeper.Sleep(ctx, jitter.Uniform(d.Min, d.Max))
}
