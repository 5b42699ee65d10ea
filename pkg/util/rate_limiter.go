package util

import (
	"context"
	"sync"
	"time"
)

const maxBackoff = 10

// RateLimiter spaces out requests by a base interval, slowing down by one interval for
// each recent error. It is safe for concurrent use.
type RateLimiter struct {
	lock       sync.Mutex
	ticker     *time.Ticker
	errorCount int
	baseRate   time.Duration
}

func NewRateLimiter(baseRate time.Duration) *RateLimiter {
	rl := &RateLimiter{}
	rl.baseRate = baseRate
	rl.ticker = time.NewTicker(rl.baseRate)

	return rl
}

// Tick waits for the next slot or for ctx to be done.
func (rl *RateLimiter) Tick(ctx context.Context) error {
	if rl == nil || rl.ticker == nil {
		return nil
	}
	select {
	case <-rl.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *RateLimiter) Close() {
	if rl != nil && rl.ticker != nil {
		rl.ticker.Stop()
	}
}

func (rl *RateLimiter) UpdateRate(isError bool) {
	if rl == nil || rl.ticker == nil {
		return
	}
	rl.lock.Lock()
	defer rl.lock.Unlock()

	update := false
	if isError {

		if rl.errorCount < maxBackoff {
			rl.errorCount++
			update = true
		}
	} else if rl.errorCount > 0 {
		rl.errorCount--
		update = true
	}

	if update {
		rl.ticker.Reset(rl.currentRate())
	}
}

func (rl *RateLimiter) currentRate() time.Duration {
	if rl.errorCount > 0 {
		return rl.baseRate * time.Duration(rl.errorCount)
	}
	return rl.baseRate
}

// CurrentRate returns the interval between requests.
func (rl *RateLimiter) CurrentRate() time.Duration {
	rl.lock.Lock()
	defer rl.lock.Unlock()
	return rl.currentRate()
}
