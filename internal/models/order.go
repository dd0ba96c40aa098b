package models

import (
	"fmt"
	"time"
)

// Order represents a trading order.
type Order struct {
	ID          string      `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Quantity    int         `json:"quantity"`
	Type        OrderType   `json:"order_type"`
	Price       *float64    `json:"price,omitempty"` // limit price
	Status      OrderStatus `json:"status"`
	FilledQty   int         `json:"filled_quantity"`
	FilledPrice float64     `json:"filled_price"`
	Timestamp   time.Time   `json:"timestamp"`
	Strategy    string      `json:"strategy"`
}

// Transition moves the order to status next. Terminal states are absorbing:
// leaving one is an error, re-entering the same terminal state is a no-op.
func (o *Order) Transition(next OrderStatus) error {
	if o.Status == next {
		return nil
	}
	if o.Status.IsTerminal() {
		return fmt.Errorf("order %s: cannot move from %s to %s", o.ID, o.Status, next)
	}
	o.Status = next
	return nil
}

// Fill marks the order as completely filled at price.
func (o *Order) Fill(price float64) error {
	if err := o.Transition(StatusFilled); err != nil {
		return err
	}
	o.FilledQty = o.Quantity
	o.FilledPrice = price
	return nil
}

// LimitPrice returns the limit price and whether one is set.
func (o Order) LimitPrice() (float64, bool) {
	if o.Price == nil {
		return 0, false
	}
	return *o.Price, true
}

// Position represents an open position, derived from the broker's book.
type Position struct {
	Symbol               string  `json:"symbol"`
	Quantity             int     `json:"quantity"`
	AveragePrice         float64 `json:"average_price"`
	CurrentPrice         float64 `json:"current_price"`
	MarketValue          float64 `json:"market_value"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`
}

// NewPosition derives the valuation fields from quantity, cost and price.
func NewPosition(symbol string, qty int, avgPrice, price float64) Position {
	marketValue := price * float64(qty)
	pnl := (price - avgPrice) * float64(qty)
	pnlPercent := 0.0
	if cost := avgPrice * float64(qty); cost != 0 {
		pnlPercent = pnl / cost * 100
	}
	return Position{
		Symbol:               symbol,
		Quantity:             qty,
		AveragePrice:         avgPrice,
		CurrentPrice:         price,
		MarketValue:          marketValue,
		UnrealizedPnL:        pnl,
		UnrealizedPnLPercent: pnlPercent,
	}
}

// Balance represents account balance as reported by the broker.
type Balance struct {
	Cash        float64 `json:"cash"`
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
}

// Account groups a balance with its identity and starting capital.
type Account struct {
	ID             string  `json:"account_id"`
	Balance        Balance `json:"balance"`
	InitialCapital float64 `json:"initial_capital"`
}
