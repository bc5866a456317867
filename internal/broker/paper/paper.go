// Package paper is a simulated broker for paper-trading sessions and tests.
// Orders always fill; premiums follow a small random walk around the last
// quote so target and stop paths both get exercised.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"levelbot/internal/broker"

	"github.com/google/uuid"
)

type quoteKey struct {
	strike int
	right  broker.OptionRight
}

// Broker simulates the Breeze capability in-process.
type Broker struct {
	mu     sync.Mutex
	quotes map[quoteKey]float64
	orders map[string]broker.OrderStatus
	rng    *rand.Rand

	basePremium float64
	drift       float64
}

func New() *Broker {
	return &Broker{
		quotes:      map[quoteKey]float64{},
		orders:      map[string]broker.OrderStatus{},
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		basePremium: 100,
		drift:       1.5,
	}
}

// SetQuote pins the premium for a strike; used by tests.
func (b *Broker) SetQuote(strike int, right broker.OptionRight, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[quoteKey{strike, right}] = price
}

func (b *Broker) Place(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("PAPER-%s", uuid.NewString())
	b.orders[id] = broker.StatusExecuted
	return broker.OrderResult{OrderID: id, Status: broker.StatusPending}, nil
}

func (b *Broker) LastTradedPrice(ctx context.Context, strike int, right broker.OptionRight) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := quoteKey{strike, right}
	price, ok := b.quotes[key]
	if !ok {
		price = b.basePremium
	}
	price += (b.rng.Float64() - 0.5) * 2 * b.drift
	if price < 0.05 {
		price = 0.05
	}
	b.quotes[key] = price
	return price, nil
}

func (b *Broker) SquareOff(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("PAPEREX-%s", uuid.NewString())
	b.orders[id] = broker.StatusExecuted
	return broker.OrderResult{OrderID: id, Status: broker.StatusPending}, nil
}

func (b *Broker) OrderDetail(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.orders[orderID]
	if !ok {
		return broker.StatusUnknown, nil
	}
	return st, nil
}

var _ broker.Broker = (*Broker)(nil)
