package etherscan

import (
	"context"
	"time"
)

// RateLimiter spaces requests out with a ticker so the API key stays under
// its per-second quota.
type RateLimiter struct {
	ticker *time.Ticker
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{
		ticker: time.NewTicker(time.Second / time.Duration(requestsPerSecond)),
	}
}

// Wait blocks until the next request slot or context cancellation.
func (r *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ticker.C:
		return nil
	}
}

func (r *RateLimiter) Stop() {
	r.ticker.Stop()
}
