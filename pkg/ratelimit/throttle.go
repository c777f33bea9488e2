package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var viesThrottleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "vies_throttle_wait_seconds",
	Help:    "Time spent waiting for the throttle before a VIES call",
	Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20},
})

// Throttle spaces calls at least Delay apart. The first call is immediate.
// A non-positive delay disables throttling.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a throttle allowing one call per delay.
func NewThrottle(delay time.Duration) *Throttle {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// NewCooldownThrottle is like NewThrottle but also holds the first call
// back by delay.
func NewCooldownThrottle(delay time.Duration) *Throttle {
	t := NewThrottle(delay)
	t.limiter.Allow()
	return t
}

// Wait blocks until the next call is allowed or ctx is done. A failed wait
// always returns ctx.Err().
func (t *Throttle) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		viesThrottleWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if err := t.limiter.Wait(ctx); err != nil {
		// The limiter fails fast when the slot lies past the deadline.
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}
