package risk

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// stubBroker serves a fixed account view for risk checks.
type stubBroker struct {
	balance    models.Balance
	positions  []models.Position
	prices     map[string]float64
	balanceErr error
	posErr     error
}

func newStub(cash float64, positions ...models.Position) *stubBroker {
	s := &stubBroker{prices: make(map[string]float64), positions: positions}
	s.setCash(cash)
	return s
}

// setCash sets cash and derives equity from the positions.
func (s *stubBroker) setCash(cash float64) {
	equity := cash
	for _, p := range s.positions {
		equity += p.MarketValue
	}
	s.balance = models.Balance{Cash: cash, Equity: equity, BuyingPower: cash}
}

func (s *stubBroker) Name() string { return "stub" }
func (s *stubBroker) Connect(ctx context.Context) error { return nil }
func (s *stubBroker) Disconnect(ctx context.Context) error { return nil }
func (s *stubBroker) IsConnected() bool { return true }
func (s *stubBroker) CancelOrder(ctx context.Context, id string) error { return nil }

func (s *stubBroker) SubmitOrder(ctx context.Context, o models.Order) (models.Order, error) {
	return o, fmt.Errorf("stub does not trade")
}

func (s *stubBroker) GetOrderStatus(ctx context.Context, id string) (models.Order, error) {
	return models.Order{}, fmt.Errorf("stub has no orders")
}

func (s *stubBroker) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	return s.balance, s.balanceErr
}

func (s *stubBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	return s.positions, s.posErr
}

func (s *stubBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	p, ok := s.prices[symbol]
	return p, ok
}

var _ broker.Broker = (*stubBroker)(nil)

func newTestController(t *testing.T, b broker.Broker, limits Limits) *Controller {
	t.Helper()
	c, err := NewController(context.Background(), b, limits, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func buySignal(symbol string, qty int) models.TradingSignal {
	return models.TradingSignal{Symbol: symbol, Action: models.OrderSideBuy, Quantity: qty, OrderType: models.OrderTypeMarket}
}

func sellSignal(symbol string, qty int) models.TradingSignal {
	return models.TradingSignal{Symbol: symbol, Action: models.OrderSideSell, Quantity: qty, OrderType: models.OrderTypeMarket}
}
