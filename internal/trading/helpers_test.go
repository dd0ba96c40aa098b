package trading

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/internal/risk"
	"github.com/Bing4Ever/quant-trading-sub001/internal/store"
)

// relaxedLimits lets every trade through except on price or cash.
func relaxedLimits() risk.Limits {
	return risk.Limits{
		MaxPositionSize:    1,
		MaxTotalExposure:   1,
		MaxSingleTradeSize: 1,
		MaxDailyLoss:       1,
		MaxDrawdown:        1,
	}
}

func newPaper(t *testing.T, prices map[string]float64) *broker.PaperBroker {
	t.Helper()
	p := broker.NewPaperBroker(broker.PaperBrokerConfig{InitialCapital: 100000, CommissionRate: 0.001})
	require.NoError(t, p.Connect(context.Background()))
	for symbol, price := range prices {
		p.SetPrice(symbol, price)
	}
	return p
}

func newEngine(t *testing.T, b broker.Broker, limits risk.Limits, journal store.Journal) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), EngineConfig{
		Broker:          b,
		Limits:          limits,
		DefaultQuantity: 100,
		Journal:         journal,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)
	return e
}

// heldBroker accepts orders as pending and fills them only when told to.
type heldBroker struct {
	mu     sync.Mutex
	orders map[string]models.Order
	prices map[string]float64
}

func newHeldBroker() *heldBroker {
	return &heldBroker{orders: make(map[string]models.Order), prices: map[string]float64{}}
}

func (h *heldBroker) Name() string { return "held" }
func (h *heldBroker) Connect(ctx context.Context) error { return nil }
func (h *heldBroker) Disconnect(ctx context.Context) error { return nil }
func (h *heldBroker) IsConnected() bool { return true }

func (h *heldBroker) SubmitOrder(ctx context.Context, o models.Order) (models.Order, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o.Status = models.StatusPending
	h.orders[o.ID] = o
	return o, nil
}

func (h *heldBroker) CancelOrder(ctx context.Context, id string) error {
	return errors.NewUnsupportedError("held", "CancelOrder")
}

func (h *heldBroker) GetOrderStatus(ctx context.Context, id string) (models.Order, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", errors.ErrUnknownOrder, id)
	}
	return o, nil
}

func (h *heldBroker) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	return models.Balance{Cash: 100000, Equity: 100000, BuyingPower: 100000}, nil
}

func (h *heldBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	return nil, nil
}

func (h *heldBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.prices[symbol]
	return p, ok
}

func (h *heldBroker) fill(id string, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o := h.orders[id]
	_ = o.Fill(price)
	h.orders[id] = o
}

func (h *heldBroker) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.orders))
	for id := range h.orders {
		out = append(out, id)
	}
	return out
}

var _ broker.Broker = (*heldBroker)(nil)

// memJournal keeps records in memory.
type memJournal struct {
	mu         sync.Mutex
	executions []store.ExecutionRecord
	updates    []store.OrderUpdateRecord
}

func (m *memJournal) RecordExecution(ctx context.Context, rec store.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, rec)
	return nil
}

func (m *memJournal) RecordOrderUpdate(ctx context.Context, rec store.OrderUpdateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, rec)
	return nil
}

func (m *memJournal) Close() error { return nil }

// scriptedAdvisor returns a fixed record per symbol.
type scriptedAdvisor struct {
	signals map[string]models.RawSignal
	err     error
	calls   []string
}

func (a *scriptedAdvisor) Strategy() string { return "llm:test" }

func (a *scriptedAdvisor) Advise(ctx context.Context, symbol string, price float64, notes string) (models.RawSignal, error) {
	a.calls = append(a.calls, symbol)
	if a.err != nil {
		return models.RawSignal{}, a.err
	}
	return a.signals[symbol], nil
}
