package source

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter paces requests to one upstream API. Successful calls
// speed it up by 20% (up to 2x the initial rate); a 429 halves it (down to
// a quarter of the initial rate).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	name        string
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at initialRate.
func NewAdaptiveLimiter(name string, initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		name:        name,
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows a request or ctx ends.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess nudges the rate up.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate == rate.Inf {
		return
	}
	newRate := min(a.currentRate*1.2, a.maxRate)
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate == rate.Inf {
		return
	}
	newRate := max(a.currentRate*0.5, a.minRate)
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("source: reducing request rate after 429",
		zap.String("source", a.name),
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// DefaultRates returns the request pacing each upstream tolerates on its
// free tier.
func DefaultRates() map[string]rate.Limit {
	return map[string]rate.Limit{
		NameFantasticJobs: rate.Every(1500 * time.Millisecond),
		NameJSearch:       rate.Every(1500 * time.Millisecond),
		NameRemotive:      rate.Every(31 * time.Second),
		NameAdzuna:        rate.Every(500 * time.Millisecond),
		NameRemoteOK:      rate.Every(time.Second),
		NameTheMuse:       rate.Every(time.Second),
		atsPages:          rate.Every(500 * time.Millisecond),
	}
}
