// Package broker defines the capability surface of the options broker.
// Implementations live in subpackages; the gateway is the only caller.
package broker

import (
	"context"
	"errors"
)

// ErrRejected marks a request the broker received and declined. Everything
// else (network, timeout, malformed response) counts as transient.
var ErrRejected = errors.New("broker rejected request")

type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusExecuted  OrderStatus = "Executed"
	StatusRejected  OrderStatus = "Rejected"
	StatusCancelled OrderStatus = "Cancelled"
	StatusUnknown   OrderStatus = "Unknown"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected || s == StatusCancelled
}

// OptionRight is the option side of an order.
type OptionRight string

const (
	Call OptionRight = "call"
	Put  OptionRight = "put"
)

// OrderRequest describes a market order for one strike.
type OrderRequest struct {
	Right    OptionRight
	Strike   int
	Quantity int
	Remark   string
}

// OrderResult is the broker's acknowledgement of a placed order.
type OrderResult struct {
	OrderID string
	Status  OrderStatus
}

// Broker is the external trading capability. All methods are synchronous and
// respect the context deadline.
type Broker interface {
	// Place submits a market buy for the given option.
	Place(ctx context.Context, req OrderRequest) (OrderResult, error)
	// LastTradedPrice returns the current premium for the option.
	LastTradedPrice(ctx context.Context, strike int, right OptionRight) (float64, error)
	// SquareOff closes the position opened by a prior Place.
	SquareOff(ctx context.Context, req OrderRequest) (OrderResult, error)
	// OrderDetail reports the current status of an order.
	OrderDetail(ctx context.Context, orderID string) (OrderStatus, error)
}
