package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

const (
	// DefaultInitialCapital is the paper account's starting cash.
	DefaultInitialCapital = 100000.0
	// DefaultCommissionRate is charged on every fill as a fraction of trade value.
	DefaultCommissionRate = 0.001
)

// paperPosition is the broker's book entry for one symbol.
type paperPosition struct {
	quantity int
	avgPrice float64
}

// PaperBroker is an in-memory matching broker. Orders are matched atomically
// at the current price on submission; there are no partial fills.
type PaperBroker struct {
	initialCapital float64
	commissionRate float64

	// Fallback market data when no price has been set locally
	prices PriceSource
	// Connected and disconnected along with the broker
	feed Feed

	connected bool
	cash      float64
	positions map[string]*paperPosition
	orders    map[string]models.Order
	history   []models.Order // every submitted order, in submission order

	// Price cache for simulation
	priceCache map[string]float64

	orderCounter int
	logger       zerolog.Logger

	mu sync.RWMutex
}

// PaperBrokerConfig holds configuration for paper broker.
type PaperBrokerConfig struct {
	InitialCapital float64
	CommissionRate float64
	Prices         PriceSource
	Feed           Feed // quotes from a live stream; used for prices when Prices is nil
	Logger         zerolog.Logger
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	capital := cfg.InitialCapital
	if capital <= 0 {
		capital = DefaultInitialCapital
	}
	rate := cfg.CommissionRate
	if rate < 0 {
		rate = DefaultCommissionRate
	}
	prices := cfg.Prices
	if prices == nil && cfg.Feed != nil {
		prices = cfg.Feed
	}

	return &PaperBroker{
		initialCapital: capital,
		commissionRate: rate,
		prices:         prices,
		feed:           cfg.Feed,
		cash:           capital,
		positions:      make(map[string]*paperPosition),
		orders:         make(map[string]models.Order),
		priceCache:     make(map[string]float64),
		logger:         cfg.Logger.With().Str("component", "paper_broker").Logger(),
	}
}

// Name returns the broker identifier.
func (p *PaperBroker) Name() string { return "paper" }

// Connect marks the broker connected. The quote feed, if any, is
// connected first.
func (p *PaperBroker) Connect(ctx context.Context) error {
	if p.feed != nil {
		if err := p.feed.Connect(ctx); err != nil {
			return errors.Wrap(err, "connecting price feed")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect marks the broker disconnected.
func (p *PaperBroker) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	if p.feed != nil {
		return p.feed.Disconnect(ctx)
	}
	return nil
}

// IsConnected reports whether orders will be matched.
func (p *PaperBroker) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// InitialCapital returns the starting cash.
func (p *PaperBroker) InitialCapital() float64 { return p.initialCapital }

// CommissionRate returns the configured commission rate.
func (p *PaperBroker) CommissionRate() float64 { return p.commissionRate }

// SubmitOrder matches the order against the current price.
func (p *PaperBroker) SubmitOrder(ctx context.Context, order models.Order) (models.Order, error) {
	// Resolve outside the lock; the source may be another broker.
	price, hasPrice := p.GetCurrentPrice(ctx, order.Symbol)

	p.mu.Lock()
	defer p.mu.Unlock()

	if order.ID == "" {
		p.orderCounter++
		order.ID = fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), p.orderCounter)
	}
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now()
	}
	order.Status = models.StatusPending
	order.FilledQty = 0
	order.FilledPrice = 0

	if _, dup := p.orders[order.ID]; dup {
		// The original record stays; only the audit history sees the duplicate.
		order.Status = models.StatusRejected
		p.history = append(p.history, order)
		return order, errors.Rejected(order.ID, order.Symbol, string(order.Side), "duplicate order id", errors.ErrInvalidOrder)
	}

	cause := p.match(&order, price, hasPrice)
	p.record(order)

	if cause != nil {
		p.logger.Warn().
			Str("order_id", order.ID).
			Str("symbol", order.Symbol).
			Str("side", string(order.Side)).
			Err(cause).
			Msg("Paper order rejected")
		return order, errors.Rejected(order.ID, order.Symbol, string(order.Side), cause.Error(), cause)
	}

	p.logger.Debug().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int("quantity", order.Quantity).
		Float64("price", order.FilledPrice).
		Float64("cash", p.cash).
		Msg("Paper order filled")

	return order, nil
}

// match applies the order to the books and sets its terminal status.
// It returns the rejection cause, or nil when filled.
func (p *PaperBroker) match(order *models.Order, price float64, hasPrice bool) error {
	reject := func(cause error) error {
		order.Status = models.StatusRejected
		return cause
	}

	if !p.connected {
		return reject(errors.ErrNotConnected)
	}
	if !hasPrice {
		return reject(errors.ErrNoQuote)
	}
	if order.Quantity <= 0 {
		return reject(fmt.Errorf("%w: quantity must be positive", errors.ErrInvalidOrder))
	}

	tradeAmount := price * float64(order.Quantity)
	commission := tradeAmount * p.commissionRate

	switch order.Side {
	case models.OrderSideBuy:
		if p.cash < tradeAmount+commission {
			return reject(fmt.Errorf("%w: need %.2f, have %.2f", errors.ErrInsufficientFunds, tradeAmount+commission, p.cash))
		}
		p.cash -= tradeAmount + commission

		pos, exists := p.positions[order.Symbol]
		if !exists {
			pos = &paperPosition{}
			p.positions[order.Symbol] = pos
		}
		pos.avgPrice = (float64(pos.quantity)*pos.avgPrice + tradeAmount) / float64(pos.quantity+order.Quantity)
		pos.quantity += order.Quantity

	case models.OrderSideSell:
		pos, exists := p.positions[order.Symbol]
		held := 0
		if exists {
			held = pos.quantity
		}
		if held < order.Quantity {
			return reject(fmt.Errorf("%w: hold %d, need %d", errors.ErrInsufficientPosition, held, order.Quantity))
		}
		p.cash += tradeAmount - commission
		pos.quantity -= order.Quantity
		if pos.quantity == 0 {
			delete(p.positions, order.Symbol)
		}

	default:
		return reject(fmt.Errorf("%w: unknown side %q", errors.ErrInvalidOrder, order.Side))
	}

	return order.Fill(price)
}

func (p *PaperBroker) record(order models.Order) {
	p.orders[order.ID] = order
	p.history = append(p.history, order)
}

// CancelOrder cancels a pending order. Paper orders are matched on submit,
// so every known order is already terminal.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownOrder, orderID)
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", errors.ErrNotCancelable, orderID, order.Status)
	}

	if err := order.Transition(models.StatusCancelled); err != nil {
		return err
	}
	p.orders[orderID] = order
	return nil
}

// GetOrderStatus returns the broker's record of an order.
func (p *PaperBroker) GetOrderStatus(ctx context.Context, orderID string) (models.Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", errors.ErrUnknownOrder, orderID)
	}
	return order, nil
}

// GetAccountBalance returns cash and equity. Positions without a quote are
// valued at cost.
func (p *PaperBroker) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	positions, err := p.GetPositions(ctx)
	if err != nil {
		return models.Balance{}, err
	}

	p.mu.RLock()
	cash := p.cash
	p.mu.RUnlock()

	equity := cash
	for _, pos := range positions {
		equity += pos.MarketValue
	}

	return models.Balance{
		Cash:        cash,
		Equity:      equity,
		BuyingPower: cash,
	}, nil
}

// GetPositions returns simulated positions valued at the current price.
func (p *PaperBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	book := make(map[string]paperPosition, len(p.positions))
	for symbol, pos := range p.positions {
		book[symbol] = *pos
	}
	p.mu.RUnlock()

	positions := make([]models.Position, 0, len(book))
	for symbol, pos := range book {
		price, ok := p.GetCurrentPrice(ctx, symbol)
		if !ok {
			price = pos.avgPrice
		}
		positions = append(positions, models.NewPosition(symbol, pos.quantity, pos.avgPrice, price))
	}
	return positions, nil
}

// GetCurrentPrice returns the locally set price, falling back to the
// configured price source.
func (p *PaperBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	p.mu.RLock()
	price, ok := p.priceCache[symbol]
	source := p.prices
	p.mu.RUnlock()

	if ok {
		return price, true
	}
	if source != nil {
		return source.GetCurrentPrice(ctx, symbol)
	}
	return 0, false
}

// SetPrice updates the cached price for a symbol.
func (p *PaperBroker) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceCache[symbol] = price
}

// ClearPrice removes the cached price for a symbol.
func (p *PaperBroker) ClearPrice(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.priceCache, symbol)
}

// History returns every submitted order, filled or rejected.
func (p *PaperBroker) History() []models.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Order, len(p.history))
	copy(out, p.history)
	return out
}

// Trades returns filled orders in submission order.
func (p *PaperBroker) Trades() []models.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()

	trades := make([]models.Order, 0, len(p.history))
	for _, o := range p.history {
		if o.Status == models.StatusFilled {
			trades = append(trades, o)
		}
	}
	return trades
}

// Reset resets the paper broker to initial state. Connection state and
// prices are kept.
func (p *PaperBroker) Reset(initialCapital float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if initialCapital <= 0 {
		initialCapital = p.initialCapital
	}
	p.initialCapital = initialCapital
	p.cash = initialCapital
	p.positions = make(map[string]*paperPosition)
	p.orders = make(map[string]models.Order)
	p.history = nil
	p.orderCounter = 0
}

// Ensure PaperBroker implements Broker interface
var _ Broker = (*PaperBroker)(nil)
