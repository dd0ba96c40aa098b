package models

import "time"

// TradingSignal is a normalized trading intent. It is created once by the
// signal generator and consumed once by risk validation and execution.
type TradingSignal struct {
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Action     OrderSide `json:"action"`
	Quantity   int       `json:"quantity"`
	Price      *float64  `json:"price,omitempty"`
	OrderType  OrderType `json:"order_type"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// RawSignal is the record a strategy produces for one symbol.
// Signal > 0 means buy, < 0 means sell and 0 means hold.
type RawSignal struct {
	Signal      int                    `json:"signal"`
	Confidence  float64                `json:"confidence"`
	Reason      string                 `json:"reason"`
	TargetPrice *float64               `json:"target_price,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Float returns a pointer to v, for optional price fields.
func Float(v float64) *float64 {
	return &v
}
