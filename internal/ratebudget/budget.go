// Package ratebudget enforces a sliding-window ceiling on outbound broker
// calls. Every call the gateway makes reserves a slot here first; the observed
// call rate can therefore never exceed the ceiling, even with concurrent
// callers.
package ratebudget

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of an admission check. When Allowed is false, Wait
// advises how long until the oldest reservation leaves the window.
type Decision struct {
	Allowed bool
	Wait    time.Duration
}

// Usage is an observability snapshot of the window. Effective is the admission
// limit (ceiling minus safety margin); callers budgeting a call sequence must
// compare against it, not the hard ceiling.
type Usage struct {
	InWindow     int     `json:"in_window"`
	Ceiling      int     `json:"ceiling"`
	Effective    int     `json:"effective"`
	PercentUsed  float64 `json:"percent_used"`
	SessionTotal int64   `json:"session_total"`
}

// Budget tracks call timestamps over a trailing window. Admission and
// reservation are a single critical section so two callers can never both
// claim the last slot.
type Budget struct {
	mu           sync.Mutex
	window       time.Duration
	ceiling      int
	margin       int
	calls        []time.Time
	sessionTotal int64

	nowFn func() time.Time
}

// New builds a budget with the given hard ceiling, safety margin and window.
// The effective limit is ceiling-margin.
func New(ceiling, margin int, window time.Duration) *Budget {
	return &Budget{
		window:  window,
		ceiling: ceiling,
		margin:  margin,
		nowFn:   time.Now,
	}
}

// Admit reserves one call slot if the window has headroom. On denial it never
// errors; it reports the duration after which a retry can succeed.
func (b *Budget) Admit() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFn()
	b.purge(now)
	if len(b.calls) < b.ceiling-b.margin {
		b.calls = append(b.calls, now)
		b.sessionTotal++
		return Decision{Allowed: true}
	}
	wait := b.calls[0].Add(b.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return Decision{Wait: wait}
}

// Wait blocks until a slot is reserved or the context ends. The total wait is
// bounded by the window length.
func (b *Budget) Wait(ctx context.Context) error {
	deadline := b.nowFn().Add(b.window)
	for {
		d := b.Admit()
		if d.Allowed {
			return nil
		}
		wait := d.Wait
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		if b.nowFn().Add(wait).After(deadline) {
			wait = deadline.Sub(b.nowFn())
			if wait <= 0 {
				return context.DeadlineExceeded
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Usage reports current window occupancy against the hard ceiling.
func (b *Budget) Usage() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purge(b.nowFn())
	u := Usage{
		InWindow:     len(b.calls),
		Ceiling:      b.ceiling,
		Effective:    b.ceiling - b.margin,
		SessionTotal: b.sessionTotal,
	}
	if b.ceiling > 0 {
		u.PercentUsed = float64(len(b.calls)) / float64(b.ceiling) * 100
	}
	return u
}

// purge drops reservations older than the window. Callers hold b.mu.
func (b *Budget) purge(now time.Time) {
	cut := 0
	for cut < len(b.calls) && now.Sub(b.calls[cut]) > b.window {
		cut++
	}
	if cut > 0 {
		b.calls = append(b.calls[:0], b.calls[cut:]...)
	}
}
