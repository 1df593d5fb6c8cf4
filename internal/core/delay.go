package core

import (
	"context"
	"time"
)

// DelayGenerator schedules wake-ups as Futures. TimerDelayGenerator resolves
// them from a goroutine of its own, so continuations attached with Then run
// there, not on the caller's goroutine. Delay waits exactly d (or until ctx
// is done); RandomDelay jitters around d using the Randomizer's geometric
// distribution, matching the source's smoothing of outbound traffic between
// recurring contributions.
type DelayGenerator interface {
	Delay(ctx context.Context, d time.Duration) *Future[struct{}]
	RandomDelay(ctx context.Context, d time.Duration) *Future[struct{}]
}

// TimerDelayGenerator is the production DelayGenerator; it posts to the
// runtime timer wheel and is safe to call from any job goroutine.
type TimerDelayGenerator struct {
	Randomizer Randomizer
}

func NewTimerDelayGenerator(r Randomizer) *TimerDelayGenerator {
	return &TimerDelayGenerator{Randomizer: r}
}

func (g *TimerDelayGenerator) Delay(ctx context.Context, d time.Duration) *Future[struct{}] {
	f := NewFuture[struct{}]()
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		f.Resolve(struct{}{})
	}()
	return f
}

func (g *TimerDelayGenerator) RandomDelay(ctx context.Context, d time.Duration) *Future[struct{}] {
	seconds := g.Randomizer.Geometric(d.Seconds())
	return g.Delay(ctx, time.Duration(seconds*float64(time.Second)))
}

// BackoffDelay is a stateful exponential backoff bounded to [min, max],
// GetNextDelay returns min*2^n capped at max and
// increments n; Reset zeroes n. n is capped at 24 internally so 2^n never
// overflows regardless of how long a job has been retrying.
type BackoffDelay struct {
	min time.Duration
	max time.Duration
	n   int
}

const maxBackoffExponent = 24

// NewBackoffDelay constructs a BackoffDelay with the given bounds. Every
// retryable external call in the engine owns one, reset on success.
func NewBackoffDelay(min, max time.Duration) *BackoffDelay {
	return &BackoffDelay{min: min, max: max}
}

// DefaultBackoffDelay matches the source's constants: 15s minimum, 30m
// maximum.
func DefaultBackoffDelay() *BackoffDelay {
	return NewBackoffDelay(15*time.Second, 30*time.Minute)
}

func (b *BackoffDelay) GetNextDelay() time.Duration {
	n := b.n
	if n > maxBackoffExponent {
		n = maxBackoffExponent
	}
	d := b.min << n
	if d <= 0 || d > b.max {
		d = b.max
	}
	if b.n < maxBackoffExponent {
		b.n++
	}
	return d
}

func (b *BackoffDelay) Reset() {
	b.n = 0
}
