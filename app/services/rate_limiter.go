package services

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/sneaker-price-ledger/utils"
	"golang.org/x/time/rate"
)

// RequestLimiter spaces marketplace calls to a per-minute budget.
// It is a token bucket of size one, so the first call passes immediately.
type RequestLimiter struct {
	limiter  *rate.Limiter
	clock    utils.Clock
	interval time.Duration
}

// NewRequestLimiter allows perMinute calls per minute measured on clock
func NewRequestLimiter(perMinute int, clock utils.Clock) (*RequestLimiter, error) {
	if perMinute <= 0 {
		return nil, fmt.Errorf("rate limit per minute must be positive, got %d", perMinute)
	}
	interval := time.Minute / time.Duration(perMinute)
	return &RequestLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		clock:    utils.ClockOrSystem(clock),
		interval: interval,
	}, nil
}

// Interval is the minimum spacing between two calls
func (l *RequestLimiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next call is allowed or ctx is done
func (l *RequestLimiter) Wait(ctx context.Context) error {
	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limiter cannot satisfy reservation")
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}
