// Package store provides persistence sinks for execution and reconciliation
// records.
package store

import (
	"context"
	"time"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
)

// Journal receives every realtime execution attempt and every order update
// produced by reconciliation.
type Journal interface {
	RecordExecution(ctx context.Context, rec ExecutionRecord) error
	RecordOrderUpdate(ctx context.Context, rec OrderUpdateRecord) error
	Close() error
}

// ExecutionRecord is one pass of a signal through risk and execution.
type ExecutionRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Action     string    `json:"action"`
	Quantity   int       `json:"quantity"`
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
	OrderID    string    `json:"order_id,omitempty"`
	RiskCheck  string    `json:"risk_check,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Failure    string    `json:"failure,omitempty"`
}

// OrderUpdateRecord is a terminal order observed during reconciliation,
// with the account state at that moment.
type OrderUpdateRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Strategy    string    `json:"strategy"`
	Status      string    `json:"status"`
	Quantity    int       `json:"quantity"`
	FilledQty   int       `json:"filled_quantity"`
	FilledPrice float64   `json:"filled_price"`
	Equity      float64   `json:"equity"`
	Cash        float64   `json:"cash"`
	DailyPnL    float64   `json:"daily_pnl"`
	Drawdown    float64   `json:"drawdown"`
}

// ExecutionFilter represents filters for querying execution records.
type ExecutionFilter struct {
	Symbol string
	Status string
	Since  time.Time
	Limit  int
}

// UpdateFilter represents filters for querying order updates.
type UpdateFilter struct {
	OrderID string
	Symbol  string
	Status  string
	Limit   int
}

// Nop discards every record.
type Nop struct{}

// RecordExecution discards rec.
func (Nop) RecordExecution(context.Context, ExecutionRecord) error { return nil }

// RecordOrderUpdate discards rec.
func (Nop) RecordOrderUpdate(context.Context, OrderUpdateRecord) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// Fanout forwards every record to each of its journals.
type Fanout []Journal

// NewFanout drops nil journals. With nothing left it returns Nop.
func NewFanout(journals ...Journal) Journal {
	var out Fanout
	for _, j := range journals {
		if j != nil {
			out = append(out, j)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	}
	return out
}

// RecordExecution writes rec to every journal, continuing past failures.
func (f Fanout) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	var errs []error
	for _, j := range f {
		if err := j.RecordExecution(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordOrderUpdate writes rec to every journal, continuing past failures.
func (f Fanout) RecordOrderUpdate(ctx context.Context, rec OrderUpdateRecord) error {
	var errs []error
	for _, j := range f {
		if err := j.RecordOrderUpdate(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every journal.
func (f Fanout) Close() error {
	var errs []error
	for _, j := range f {
		if err := j.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
