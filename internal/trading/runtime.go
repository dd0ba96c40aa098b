package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// Advisor produces a raw strategy record for a symbol at a price.
type Advisor interface {
	Strategy() string
	Advise(ctx context.Context, symbol string, price float64, notes string) (models.RawSignal, error)
}

// RuntimeConfig configures a Runtime.
type RuntimeConfig struct {
	Symbols  []string
	Interval time.Duration
	Advisor  Advisor // optional; without one the runtime only reconciles
	Logger   zerolog.Logger
}

// Runtime drives an Engine on a fixed cadence from a single goroutine.
type Runtime struct {
	engine   *Engine
	advisor  Advisor
	symbols  []string
	interval time.Duration
	logger   zerolog.Logger
}

// TickReport summarizes one runtime pass.
type TickReport struct {
	Signals []RealtimeResult `json:"signals,omitempty"`
	Updates []OrderUpdate    `json:"updates,omitempty"`
}

// NewRuntime creates a runtime around engine.
func NewRuntime(engine *Engine, cfg RuntimeConfig) *Runtime {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Runtime{
		engine:   engine,
		advisor:  cfg.Advisor,
		symbols:  cfg.Symbols,
		interval: cfg.Interval,
		logger:   logging.WithComponent(cfg.Logger, "runtime"),
	}
}

// Run ticks until ctx is cancelled. The first pass runs immediately.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info().
		Dur("interval", r.interval).
		Strs("symbols", r.symbols).
		Bool("advisor", r.advisor != nil).
		Msg("Runtime started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.Tick(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Runtime stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one pass: quotes and advisor signals for every symbol, then
// reconciliation, then the peak-equity update. Symbols without a quote are
// skipped.
func (r *Runtime) Tick(ctx context.Context) TickReport {
	var report TickReport

	for _, symbol := range r.symbols {
		if ctx.Err() != nil {
			return report
		}
		price, ok := r.engine.Broker().GetCurrentPrice(ctx, symbol)
		if !ok {
			r.logger.Debug().Str("symbol", symbol).Msg("No quote")
			continue
		}
		r.engine.metrics.RecordLastPrice(symbol, price)

		if r.advisor == nil {
			continue
		}
		if result, ok := r.advise(ctx, symbol, price); ok {
			report.Signals = append(report.Signals, result)
		}
	}

	report.Updates = r.engine.ReconcileOrders(ctx)
	for _, u := range report.Updates {
		logging.LogOrder(r.logger, u.OrderID, u.Order.Symbol, string(u.Order.Side), string(u.Status))
	}

	if err := r.engine.UpdatePeakEquity(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Peak equity update failed")
	}
	return report
}

func (r *Runtime) advise(ctx context.Context, symbol string, price float64) (RealtimeResult, bool) {
	logger := logging.WithSymbol(r.logger, symbol)

	raw, err := r.advisor.Advise(ctx, symbol, price, "")
	if err != nil {
		logger.Warn().Err(err).Msg("Advisor failed")
		return RealtimeResult{}, false
	}

	result := r.engine.ProcessRaw(ctx, symbol, r.advisor.Strategy(), raw)
	logger.Info().
		Str("status", string(result.Status)).
		Str("order_id", result.OrderID).
		Str("reason", result.Reason).
		Msg("Advisor signal processed")
	return result, true
}
