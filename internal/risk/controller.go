// Package risk validates trading signals against account-level limits.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// EstimatedCommissionRate is the commission assumed by the cash check,
// independent of the broker's configured rate.
const EstimatedCommissionRate = 0.001

// Limits holds the six fractional risk thresholds. They are fixed for the
// life of a Controller.
type Limits struct {
	MaxPositionSize    float64 `json:"max_position_size"`
	MaxTotalExposure   float64 `json:"max_total_exposure"`
	MaxSingleTradeSize float64 `json:"max_single_trade_size"`
	MaxDailyLoss       float64 `json:"max_daily_loss"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	MinCashReserve     float64 `json:"min_cash_reserve"`
}

// DefaultLimits returns the default risk limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:    0.10,
		MaxTotalExposure:   0.80,
		MaxSingleTradeSize: 0.05,
		MaxDailyLoss:       0.02,
		MaxDrawdown:        0.10,
		MinCashReserve:     0.10,
	}
}

// Check names a validation rule.
type Check string

const (
	CheckNone          Check = ""
	CheckAccount       Check = "account"
	CheckEquity        Check = "equity"
	CheckPrice         Check = "price"
	CheckTradeSize     Check = "trade_size"
	CheckCash          Check = "cash"
	CheckCashReserve   Check = "cash_reserve"
	CheckPositionSize  Check = "position_size"
	CheckTotalExposure Check = "total_exposure"
	CheckDailyLoss     Check = "daily_loss"
	CheckDrawdown      Check = "drawdown"
)

// Decision is the outcome of validating one signal. A failed decision names
// the first rule that failed.
type Decision struct {
	Passed bool    `json:"passed"`
	Reason string  `json:"reason"`
	Check  Check   `json:"check,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Limit  float64 `json:"limit,omitempty"`
}

// Err returns the failure as a *errors.RiskError, or nil when passed.
func (d Decision) Err() error {
	if d.Passed {
		return nil
	}
	return errors.NewRiskError(string(d.Check), d.Value, d.Limit, d.Reason)
}

func pass() Decision {
	return Decision{Passed: true, Reason: "risk checks passed"}
}

func fail(check Check, value, limit float64, format string, args ...interface{}) Decision {
	return Decision{
		Check:  check,
		Value:  value,
		Limit:  limit,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Controller validates signals against Limits using fresh broker reads.
// Its own state is the peak-equity high-water mark and the daily ledger.
type Controller struct {
	broker broker.Broker
	limits Limits

	initialEquity float64
	peakEquity    float64

	// Daily ledger, reset lazily on the first call of a new calendar day.
	day            string
	dayOpenEquity  float64
	dayOpenPending bool
	dailyTrades    []models.Order

	now    func() time.Time
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewController reads the starting equity from the broker. The starting
// equity seeds the peak and the first day's opening equity.
func NewController(ctx context.Context, b broker.Broker, limits Limits, logger zerolog.Logger) (*Controller, error) {
	balance, err := b.GetAccountBalance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading initial equity")
	}

	c := &Controller{
		broker:        b,
		limits:        limits,
		initialEquity: balance.Equity,
		peakEquity:    balance.Equity,
		dayOpenEquity: balance.Equity,
		now:           time.Now,
		logger:        logging.WithComponent(logger, "risk"),
	}
	c.day = c.today()

	c.logger.Info().
		Float64("initial_equity", c.initialEquity).
		Interface("limits", limits).
		Msg("Risk controller initialized")
	return c, nil
}

// Limits returns the configured limits.
func (c *Controller) Limits() Limits { return c.limits }

// InitialEquity returns the equity read at construction.
func (c *Controller) InitialEquity() float64 { return c.initialEquity }

// PeakEquity returns the high-water mark.
func (c *Controller) PeakEquity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakEquity
}

func (c *Controller) today() string {
	return c.now().Format("2006-01-02")
}

// maybeAdvanceDay clears the daily ledger when the calendar day changed.
// The new day's opening equity is taken at the next balance read.
// Callers hold c.mu.
func (c *Controller) maybeAdvanceDay() {
	today := c.today()
	if today == c.day {
		return
	}
	c.logger.Info().Str("from", c.day).Str("to", today).Msg("Resetting daily risk counters")
	c.day = today
	c.dailyTrades = nil
	c.dayOpenPending = true
}

// observeEquity records the opening equity of a new day. Callers hold c.mu.
func (c *Controller) observeEquity(equity float64) {
	if c.dayOpenPending {
		c.dayOpenEquity = equity
		c.dayOpenPending = false
	}
}

func (c *Controller) dailyPnL(equity float64) float64 {
	return equity - c.dayOpenEquity
}

// Validate runs the ordered checks against signal. The first failing check
// decides the outcome. Broker read errors fail closed.
func (c *Controller) Validate(ctx context.Context, sig models.TradingSignal) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.validate(ctx, sig)
	logging.LogRiskDecision(c.logger, sig.Symbol, string(sig.Action), d.Passed, d.Reason)
	return d
}

func (c *Controller) validate(ctx context.Context, sig models.TradingSignal) Decision {
	c.maybeAdvanceDay()

	balance, err := c.broker.GetAccountBalance(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Balance read failed during validation")
		return fail(CheckAccount, 0, 0, "account balance unavailable: %v", err)
	}
	equity, cash := balance.Equity, balance.Cash
	c.observeEquity(equity)

	// 1. Equity
	if equity <= 0 {
		return fail(CheckEquity, equity, 0, "account equity is %.2f", equity)
	}

	// 2. Price
	price, ok := c.broker.GetCurrentPrice(ctx, sig.Symbol)
	if !ok {
		return fail(CheckPrice, 0, 0, "no current price for %s", sig.Symbol)
	}

	tradeValue := price * float64(sig.Quantity)
	isBuy := sig.Action == models.OrderSideBuy

	// 3. Single trade size
	tradeRatio := tradeValue / equity
	if tradeRatio > c.limits.MaxSingleTradeSize {
		return fail(CheckTradeSize, tradeRatio, c.limits.MaxSingleTradeSize,
			"single trade size too large: %.2f%% > %.2f%%", tradeRatio*100, c.limits.MaxSingleTradeSize*100)
	}

	var positions []models.Position
	if isBuy {
		// 4. Cash and reserve
		totalCost := tradeValue + tradeValue*EstimatedCommissionRate
		if totalCost > cash {
			return fail(CheckCash, totalCost, cash, "insufficient cash: need %.2f, available %.2f", totalCost, cash)
		}
		reserveRatio := (cash - totalCost) / equity
		if reserveRatio < c.limits.MinCashReserve {
			return fail(CheckCashReserve, reserveRatio, c.limits.MinCashReserve,
				"cash reserve too low: %.2f%% < %.2f%%", reserveRatio*100, c.limits.MinCashReserve*100)
		}

		positions, err = c.broker.GetPositions(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Position read failed during validation")
			return fail(CheckAccount, 0, 0, "positions unavailable: %v", err)
		}

		// 5. Projected symbol position
		symbolValue := tradeValue
		totalValue := tradeValue
		for _, pos := range positions {
			if pos.Symbol == sig.Symbol {
				symbolValue += pos.MarketValue
			}
			totalValue += pos.MarketValue
		}
		positionRatio := symbolValue / equity
		if positionRatio > c.limits.MaxPositionSize {
			return fail(CheckPositionSize, positionRatio, c.limits.MaxPositionSize,
				"position size too large: %.2f%% > %.2f%%", positionRatio*100, c.limits.MaxPositionSize*100)
		}

		// 6. Projected total exposure
		exposure := totalValue / equity
		if exposure > c.limits.MaxTotalExposure {
			return fail(CheckTotalExposure, exposure, c.limits.MaxTotalExposure,
				"total exposure too high: %.2f%% > %.2f%%", exposure*100, c.limits.MaxTotalExposure*100)
		}
	}

	// 7. Daily loss
	if pnl := c.dailyPnL(equity); pnl < 0 && c.initialEquity > 0 {
		lossRatio := math.Abs(pnl) / c.initialEquity
		if lossRatio > c.limits.MaxDailyLoss {
			return fail(CheckDailyLoss, lossRatio, c.limits.MaxDailyLoss,
				"daily loss limit exceeded: %.2f%% > %.2f%%", lossRatio*100, c.limits.MaxDailyLoss*100)
		}
	}

	// 8. Drawdown
	if drawdown := c.drawdown(equity); drawdown > c.limits.MaxDrawdown {
		return fail(CheckDrawdown, drawdown, c.limits.MaxDrawdown,
			"max drawdown exceeded: %.2f%% > %.2f%%", drawdown*100, c.limits.MaxDrawdown*100)
	}

	return pass()
}

func (c *Controller) drawdown(equity float64) float64 {
	if c.peakEquity <= 0 {
		return 0
	}
	return (c.peakEquity - equity) / c.peakEquity
}

// BatchResult pairs a signal with its decision.
type BatchResult struct {
	Signal   models.TradingSignal `json:"signal"`
	Decision Decision             `json:"decision"`
}

// ValidateBatch validates each signal on its own against the current
// account state. Signals do not see each other, so a batch can pass jointly
// even where the combined trades would breach a limit.
func (c *Controller) ValidateBatch(ctx context.Context, signals []models.TradingSignal) []BatchResult {
	results := make([]BatchResult, 0, len(signals))
	passed := 0
	for _, sig := range signals {
		d := c.Validate(ctx, sig)
		if d.Passed {
			passed++
		}
		results = append(results, BatchResult{Signal: sig, Decision: d})
	}

	c.logger.Info().Int("passed", passed).Int("total", len(signals)).Msg("Batch risk validation")
	return results
}

// UpdatePeakEquity raises the high-water mark to the current equity. It is
// the only way the peak moves.
func (c *Controller) UpdatePeakEquity(ctx context.Context) error {
	balance, err := c.broker.GetAccountBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "reading equity")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeAdvanceDay()
	c.observeEquity(balance.Equity)
	if balance.Equity > c.peakEquity {
		c.peakEquity = balance.Equity
		c.logger.Info().Float64("peak_equity", c.peakEquity).Msg("Peak equity updated")
	}
	return nil
}

// RecordTrade appends an order to the daily ledger.
func (c *Controller) RecordTrade(order models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeAdvanceDay()
	c.dailyTrades = append(c.dailyTrades, order)
	c.logger.Debug().Str("order_id", order.ID).Msg("Trade recorded")
}

// DailyTrades returns the orders recorded today.
func (c *Controller) DailyTrades() []models.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeAdvanceDay()
	out := make([]models.Order, len(c.dailyTrades))
	copy(out, c.dailyTrades)
	return out
}
