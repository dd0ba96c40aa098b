// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"

	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// Broker defines the capability contract shared by every backend.
// Calls are synchronous; connect and disconnect are idempotent.
type Broker interface {
	// Connection
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Orders. SubmitOrder returns the broker's record of the order with its
	// status set. A refused order comes back as rejected together with an
	// error wrapping errors.ErrOrderRejected.
	SubmitOrder(ctx context.Context, order models.Order) (models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (models.Order, error)

	// Account
	GetAccountBalance(ctx context.Context) (models.Balance, error)
	GetPositions(ctx context.Context) ([]models.Position, error)

	// Market data. The bool is false when no quote is available, which is
	// distinct from a zero price.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, bool)

	Name() string
}

// PriceSource supplies last prices. Every Broker is a PriceSource.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, bool)
}

// Feed is a price source that keeps its own connection, such as a market
// data stream.
type Feed interface {
	PriceSource
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// StaticPrices is a fixed quote table.
type StaticPrices map[string]float64

// GetCurrentPrice returns the table entry for symbol.
func (s StaticPrices) GetCurrentPrice(_ context.Context, symbol string) (float64, bool) {
	price, ok := s[symbol]
	return price, ok
}

// Account assembles an account view from the broker's balance.
func Account(ctx context.Context, b Broker, initialCapital float64) (models.Account, error) {
	balance, err := b.GetAccountBalance(ctx)
	if err != nil {
		return models.Account{}, err
	}
	return models.Account{
		ID:             b.Name(),
		Balance:        balance,
		InitialCapital: initialCapital,
	}, nil
}
