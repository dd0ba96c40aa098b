// Package models provides domain models for the trading application.
package models

import (
	"strings"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ParseOrderSide maps an action string to a side, ignoring case.
// Anything other than "buy" is treated as a sell.
func ParseOrderSide(action string) OrderSide {
	if strings.EqualFold(strings.TrimSpace(action), string(OrderSideBuy)) {
		return OrderSideBuy
	}
	return OrderSideSell
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// ParseOrderType parses a configured order type, defaulting to market.
func ParseOrderType(s string) OrderType {
	switch OrderType(strings.ToLower(strings.TrimSpace(s))) {
	case OrderTypeLimit:
		return OrderTypeLimit
	case OrderTypeStop:
		return OrderTypeStop
	case OrderTypeStopLimit:
		return OrderTypeStopLimit
	default:
		return OrderTypeMarket
	}
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending       OrderStatus = "pending"
	StatusPartialFilled OrderStatus = "partial_filled"
	StatusFilled        OrderStatus = "filled"
	StatusCancelled     OrderStatus = "cancelled"
	StatusRejected      OrderStatus = "rejected"
)

// IsTerminal reports whether no further transition can occur from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// TradingMode represents how orders reach the market.
type TradingMode string

const (
	ModeSimulation TradingMode = "simulation"
	ModePaper      TradingMode = "paper"
	ModeLive       TradingMode = "live"
)
