package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
)

// Metrics is a point-in-time risk snapshot.
type Metrics struct {
	Equity                float64   `json:"equity"`
	Cash                  float64   `json:"cash"`
	CashRatio             float64   `json:"cash_ratio"`
	TotalExposure         float64   `json:"total_exposure"`
	CurrentDrawdown       float64   `json:"current_drawdown"`
	PeakEquity            float64   `json:"peak_equity"`
	DailyPnL              float64   `json:"daily_pnl"`
	DailyLossRatio        float64   `json:"daily_loss_ratio"`
	DailyTrades           int       `json:"daily_trades_count"`
	LargestPositionSymbol string    `json:"max_position_symbol"`
	LargestPositionRatio  float64   `json:"max_position_ratio"`
	Limits                Limits    `json:"risk_limits"`
	Timestamp             time.Time `json:"timestamp"`
}

// Metrics reads the account and returns a risk snapshot.
func (c *Controller) Metrics(ctx context.Context) (Metrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics(ctx)
}

func (c *Controller) metrics(ctx context.Context) (Metrics, error) {
	c.maybeAdvanceDay()

	balance, err := c.broker.GetAccountBalance(ctx)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "reading balance")
	}
	positions, err := c.broker.GetPositions(ctx)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "reading positions")
	}
	c.observeEquity(balance.Equity)

	m := Metrics{
		Equity:          balance.Equity,
		Cash:            balance.Cash,
		PeakEquity:      c.peakEquity,
		CurrentDrawdown: c.drawdown(balance.Equity),
		DailyPnL:        c.dailyPnL(balance.Equity),
		DailyTrades:     len(c.dailyTrades),
		Limits:          c.limits,
		Timestamp:       c.now(),
	}
	if c.initialEquity > 0 {
		m.DailyLossRatio = math.Abs(m.DailyPnL) / c.initialEquity
	}

	var positionValue float64
	for _, pos := range positions {
		positionValue += pos.MarketValue
	}
	if balance.Equity > 0 {
		m.CashRatio = balance.Cash / balance.Equity
		m.TotalExposure = positionValue / balance.Equity
		for _, pos := range positions {
			if ratio := pos.MarketValue / balance.Equity; ratio > m.LargestPositionRatio {
				m.LargestPositionRatio = ratio
				m.LargestPositionSymbol = pos.Symbol
			}
		}
	}

	return m, nil
}

// Reduction suggests trimming an oversized position.
type Reduction struct {
	Symbol         string  `json:"symbol"`
	CurrentRatio   float64 `json:"current_ratio"`
	TargetRatio    float64 `json:"target_ratio"`
	ReduceQuantity int     `json:"reduce_quantity"`
}

// Increase marks a position with room to grow.
type Increase struct {
	Symbol         string  `json:"symbol"`
	CurrentRatio   float64 `json:"current_ratio"`
	AvailableRatio float64 `json:"available_ratio"`
}

// Warning flags a metric close to its limit.
type Warning struct {
	Type    Check  `json:"type"`
	Message string `json:"message"`
}

// Suggestions groups position adjustments and warnings.
type Suggestions struct {
	Reduce      []Reduction `json:"reduce_positions"`
	CanIncrease []Increase  `json:"can_increase"`
	Warnings    []Warning   `json:"warnings"`
}

// Warning thresholds as a share of the corresponding limit.
const (
	drawdownWarnShare = 0.8
	exposureWarnShare = 0.9
	increaseShare     = 0.5
)

// PositionSuggestions flags positions above MaxPositionSize, positions
// below half of it, and drawdown or exposure nearing their limits.
func (c *Controller) PositionSuggestions(ctx context.Context) (Suggestions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.metrics(ctx)
	if err != nil {
		return Suggestions{}, err
	}
	positions, err := c.broker.GetPositions(ctx)
	if err != nil {
		return Suggestions{}, errors.Wrap(err, "reading positions")
	}

	var s Suggestions
	for _, pos := range positions {
		ratio := 0.0
		if m.Equity > 0 {
			ratio = pos.MarketValue / m.Equity
		}

		switch {
		case ratio > c.limits.MaxPositionSize:
			excess := pos.MarketValue - m.Equity*c.limits.MaxPositionSize
			qty := 0
			if pos.CurrentPrice > 0 {
				qty = int(excess / pos.CurrentPrice)
			}
			s.Reduce = append(s.Reduce, Reduction{
				Symbol:         pos.Symbol,
				CurrentRatio:   ratio,
				TargetRatio:    c.limits.MaxPositionSize,
				ReduceQuantity: qty,
			})
		case ratio < c.limits.MaxPositionSize*increaseShare:
			s.CanIncrease = append(s.CanIncrease, Increase{
				Symbol:         pos.Symbol,
				CurrentRatio:   ratio,
				AvailableRatio: c.limits.MaxPositionSize - ratio,
			})
		}
	}

	if m.CurrentDrawdown > c.limits.MaxDrawdown*drawdownWarnShare {
		s.Warnings = append(s.Warnings, Warning{
			Type:    CheckDrawdown,
			Message: fmt.Sprintf("drawdown nearing limit: %.2f%%", m.CurrentDrawdown*100),
		})
	}
	if m.TotalExposure > c.limits.MaxTotalExposure*exposureWarnShare {
		s.Warnings = append(s.Warnings, Warning{
			Type:    CheckTotalExposure,
			Message: fmt.Sprintf("total exposure high: %.2f%%", m.TotalExposure*100),
		})
	}

	return s, nil
}
