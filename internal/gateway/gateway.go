// Package gateway is the single path to the broker. Every outbound call is
// admitted by the rate budget first, then gated by a circuit breaker, so no
// other package can spend API calls unaccounted.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"levelbot/internal/broker"
	"levelbot/internal/logger"
	"levelbot/internal/metrics"
	"levelbot/internal/pkg/circuit"
	"levelbot/internal/ratebudget"
	"levelbot/internal/signal"

	"github.com/shopspring/decimal"
)

// ErrCircuitOpen is returned when the broker circuit is open. The call is
// never sent and no budget slot is spent. Callers should treat it as
// transient and try again on a later tick.
var ErrCircuitOpen = errors.New("broker circuit open")

// RightFor maps a signal direction to the option right we buy for it.
func RightFor(dir signal.Direction) broker.OptionRight {
	if dir == signal.Bearish {
		return broker.Put
	}
	return broker.Call
}

// Gateway serializes broker access behind the call budget.
type Gateway struct {
	broker    broker.Broker
	budget    *ratebudget.Budget
	breaker   *circuit.Breaker
	retryWait time.Duration

	sleepFn func(ctx context.Context, d time.Duration) error
}

func New(b broker.Broker, budget *ratebudget.Budget, breaker *circuit.Breaker) *Gateway {
	return &Gateway{
		broker:    b,
		budget:    budget,
		breaker:   breaker,
		retryWait: 2 * time.Second,
		sleepFn:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Enter places a market buy for the given option.
func (g *Gateway) Enter(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	var res broker.OrderResult
	err := g.call(ctx, "order", func(ctx context.Context) error {
		var err error
		res, err = g.broker.Place(ctx, req)
		return err
	})
	return res, err
}

// Quote returns the current premium for the option as a decimal.
func (g *Gateway) Quote(ctx context.Context, strike int, right broker.OptionRight) (decimal.Decimal, error) {
	var ltp float64
	err := g.call(ctx, "quotes", func(ctx context.Context) error {
		var err error
		ltp, err = g.broker.LastTradedPrice(ctx, strike, right)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(ltp), nil
}

// Exit squares off the position opened by a prior Enter.
func (g *Gateway) Exit(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	var res broker.OrderResult
	err := g.call(ctx, "squareoff", func(ctx context.Context) error {
		var err error
		res, err = g.broker.SquareOff(ctx, req)
		return err
	})
	return res, err
}

// Verify fetches the current status of an order.
func (g *Gateway) Verify(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	var st broker.OrderStatus
	err := g.call(ctx, "order", func(ctx context.Context) error {
		var err error
		st, err = g.broker.OrderDetail(ctx, orderID)
		return err
	})
	if err != nil {
		return broker.StatusUnknown, err
	}
	return st, nil
}

// Usage exposes the budget snapshot for the status surface.
func (g *Gateway) Usage() ratebudget.Usage {
	return g.budget.Usage()
}

// call runs one broker operation: admit against the budget, check the
// breaker, execute, and retry once on a transient failure. Rejections are
// final and never retried.
func (g *Gateway) call(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if !g.breaker.Allow() {
			metrics.APIFailures.WithLabelValues("circuit").Inc()
			return ErrCircuitOpen
		}
		if err := g.admit(ctx, endpoint); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			g.breaker.RecordSuccess()
			return nil
		}
		if errors.Is(err, broker.ErrRejected) {
			// The broker saw the request and said no. The transport is
			// healthy, so the breaker records a success.
			g.breaker.RecordSuccess()
			metrics.APIFailures.WithLabelValues("rejected").Inc()
			return err
		}
		g.breaker.RecordFailure()
		metrics.APIFailures.WithLabelValues("transient").Inc()
		if attempt >= 1 {
			return fmt.Errorf("broker %s failed after retry: %w", endpoint, err)
		}
		logger.Warnf("broker %s failed, retrying in %s: %v", endpoint, g.retryWait, err)
		if serr := g.sleepFn(ctx, g.retryWait); serr != nil {
			return serr
		}
	}
}

func (g *Gateway) admit(ctx context.Context, endpoint string) error {
	dec := g.budget.Admit()
	if !dec.Allowed {
		metrics.APIDeferrals.Inc()
		logger.Warnf("call budget exhausted, deferring %s for %s", endpoint, dec.Wait.Round(time.Second))
		if err := g.budget.Wait(ctx); err != nil {
			return err
		}
	}
	usage := g.budget.Usage()
	metrics.BudgetUsage.Set(usage.PercentUsed / 100)
	metrics.APICalls.WithLabelValues(endpoint).Inc()
	return nil
}
