package orchestrator

import (
	"context"
	"math/rand"
	"time"
)

// Stagger spaces batch launches out over time so a large batch does
// not land on the host all at once. A rate of N allows N launches per
// second; each launch also gets a deterministic per-index jitter so
// repeated batches keep their relative offsets instead of
// synchronizing.
type Stagger struct {
	rate      int           // launches per second
	maxJitter time.Duration // maximum jitter per launch
	seed      int64
}

// NewStagger creates a stagger with the given rate and jitter, seeded
// from the clock.
func NewStagger(rate int, maxJitter time.Duration) *Stagger {
	return NewStaggerWithSeed(rate, maxJitter, time.Now().UnixNano())
}

// NewStaggerWithSeed creates a stagger with a specific seed for
// reproducibility.
func NewStaggerWithSeed(rate int, maxJitter time.Duration, seed int64) *Stagger {
	return &Stagger{
		rate:      rate,
		maxJitter: maxJitter,
		seed:      seed,
	}
}

// Delay returns the wait before launch i. The same stagger always
// returns the same delay for the same index. A rate of zero drops the
// base delay but keeps the jitter, which spreads simultaneous
// launches without capping their rate.
func (s *Stagger) Delay(i int) time.Duration {
	// rate=5 means one launch per 200ms
	var base time.Duration
	if s.rate > 0 {
		base = time.Second / time.Duration(s.rate)
	}
	return base + s.jitter(i)
}

// Schedule waits the appropriate amount of time before launch i.
// Returns nil on success, or the context error if cancelled.
func (s *Stagger) Schedule(ctx context.Context, i int) error {
	delay := s.Delay(i)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// jitter returns the jitter for launch i within [0, maxJitter). The
// index is folded into the seed, so the same launch position jitters
// identically across batches that share a seed.
func (s *Stagger) jitter(i int) time.Duration {
	if s.maxJitter <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(int64(i) ^ s.seed))
	return time.Duration(rng.Int63n(int64(s.maxJitter)))
}

// EstimatedDuration returns the estimated time to launch n entries.
func (s *Stagger) EstimatedDuration(n int) time.Duration {
	if s.rate <= 0 {
		return 0
	}
	base := time.Duration(n) * time.Second / time.Duration(s.rate)
	avgJitter := s.maxJitter / 2
	return base + avgJitter
}

// Rate returns the configured launch rate per second.
func (s *Stagger) Rate() int {
	return s.rate
}

// MaxJitter returns the configured maximum per-launch jitter.
func (s *Stagger) MaxJitter() time.Duration {
	return s.maxJitter
}
