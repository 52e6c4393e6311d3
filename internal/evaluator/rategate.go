package evaluator

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGate decides whether a subscription is due for evaluation this
// scheduler cycle, honoring its own frequency_seconds cadence independent
// of the scheduler's global tick interval (spec §4.6: the scheduler may
// tick every minute while an individual alert asks for hourly
// re-evaluation). It is a thin wrapper over one golang.org/x/time/rate
// limiter per subscription, refilled at 1/frequency_seconds with burst 1,
// so a subscription whose last evaluation was recent is simply skipped
// this cycle rather than re-queued.
type RateGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateGate builds an empty RateGate.
func NewRateGate() *RateGate {
	return &RateGate{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether alertID may be evaluated now, lazily creating its
// limiter on first use. frequencySec <= 0 is treated as "always due".
func (g *RateGate) Allow(alertID string, frequencySec int) bool {
	if frequencySec <= 0 {
		return true
	}
	g.mu.Lock()
	lim, ok := g.limiters[alertID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Duration(frequencySec)*time.Second), 1)
		g.limiters[alertID] = lim
	}
	g.mu.Unlock()
	return lim.Allow()
}

// Forget drops a subscription's limiter, called when a subscription is
// deleted or deactivated so RateGate does not grow unbounded over the
// scheduler's lifetime.
func (g *RateGate) Forget(alertID string) {
	g.mu.Lock()
	delete(g.limiters, alertID)
	g.mu.Unlock()
}
