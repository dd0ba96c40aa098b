// Package trading composes signal generation, risk validation and order
// execution, and reconciles pending orders against the broker.
package trading

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/execution"
	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
	"github.com/Bing4Ever/quant-trading-sub001/internal/metrics"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/internal/risk"
	"github.com/Bing4Ever/quant-trading-sub001/internal/signal"
	"github.com/Bing4Ever/quant-trading-sub001/internal/store"
)

// RealtimeStatus is the outcome of processing one realtime signal.
type RealtimeStatus string

const (
	StatusExecuted RealtimeStatus = "executed"
	StatusRejected RealtimeStatus = "rejected"
	StatusFailed   RealtimeStatus = "failed"
	StatusNoSignal RealtimeStatus = "no_signal"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	Broker          broker.Broker
	Limits          risk.Limits
	DefaultQuantity int
	OrderType       models.OrderType
	MinConfidence   float64
	Journal         store.Journal     // optional
	Metrics         *metrics.Recorder // optional
	Logger          zerolog.Logger
}

// Engine runs signals through generator, risk controller and executor.
// Passes are serialized: one signal or reconciliation at a time.
type Engine struct {
	broker    broker.Broker
	generator *signal.Generator
	risk      *risk.Controller
	executor  *execution.Executor
	journal   store.Journal
	metrics   *metrics.Recorder

	defaultQuantity int
	orderType       models.OrderType
	minConfidence   float64

	now    func() time.Time
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewEngine builds the pipeline around cfg.Broker. The risk controller reads
// the account here, so the broker must already be connected.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Broker == nil {
		return nil, errors.Wrap(errors.ErrConfigInvalid, "engine requires a broker")
	}
	if cfg.DefaultQuantity <= 0 {
		cfg.DefaultQuantity = 100
	}
	if cfg.OrderType == "" {
		cfg.OrderType = models.OrderTypeMarket
	}
	if cfg.Journal == nil {
		cfg.Journal = store.Nop{}
	}

	controller, err := risk.NewController(ctx, cfg.Broker, cfg.Limits, cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		broker:          cfg.Broker,
		generator:       signal.NewGenerator(cfg.Logger),
		risk:            controller,
		executor:        execution.NewExecutor(cfg.Broker, cfg.Logger),
		journal:         cfg.Journal,
		metrics:         cfg.Metrics,
		defaultQuantity: cfg.DefaultQuantity,
		orderType:       cfg.OrderType,
		minConfidence:   cfg.MinConfidence,
		now:             time.Now,
		logger:          logging.WithComponent(cfg.Logger, "engine"),
	}, nil
}

// Broker returns the engine's broker.
func (e *Engine) Broker() broker.Broker { return e.broker }

// Generator returns the signal generator.
func (e *Engine) Generator() *signal.Generator { return e.generator }

// Risk returns the risk controller.
func (e *Engine) Risk() *risk.Controller { return e.risk }

// Executor returns the order executor.
func (e *Engine) Executor() *execution.Executor { return e.executor }

// RealtimeRequest is one externally produced trading intent.
type RealtimeRequest struct {
	Symbol      string                 `json:"symbol"`
	Strategy    string                 `json:"strategy"`
	Action      string                 `json:"action"` // buy, sell or hold
	Confidence  float64                `json:"confidence"`
	Reason      string                 `json:"reason,omitempty"`
	TargetPrice *float64               `json:"target_price,omitempty"`
	Quantity    int                    `json:"quantity,omitempty"`   // engine default when zero
	OrderType   models.OrderType       `json:"order_type,omitempty"` // engine default when empty
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// RealtimeResult is the outcome of ProcessRealtimeSignal.
type RealtimeResult struct {
	Status  RealtimeStatus        `json:"status"`
	Symbol  string                `json:"symbol"`
	Action  string                `json:"action"`
	OrderID string                `json:"order_id,omitempty"`
	Signal  *models.TradingSignal `json:"signal,omitempty"`
	Risk    *risk.Decision        `json:"risk_check,omitempty"`
	Order   *models.Order         `json:"order,omitempty"`
	Failure execution.FailureKind `json:"failure,omitempty"`
	Reason  string                `json:"reason,omitempty"`
	Err     error                 `json:"-"`
}

// rawFromAction turns a buy/sell/hold action into a raw strategy record.
func rawFromAction(req RealtimeRequest) models.RawSignal {
	raw := models.RawSignal{
		Confidence:  req.Confidence,
		Reason:      req.Reason,
		TargetPrice: req.TargetPrice,
		Metadata:    req.Metadata,
	}
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "buy":
		raw.Signal = 1
	case "sell":
		raw.Signal = -1
	}
	return raw
}

// ProcessRealtimeSignal generates a signal from req, validates it and, when
// it passes, submits it.
func (e *Engine) ProcessRealtimeSignal(ctx context.Context, req RealtimeRequest) RealtimeResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process(ctx, req.Symbol, req.Strategy, rawFromAction(req), req.Quantity, req.OrderType)
}

// ProcessRaw is ProcessRealtimeSignal for a record already in strategy form.
func (e *Engine) ProcessRaw(ctx context.Context, symbol, strategy string, raw models.RawSignal) RealtimeResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process(ctx, symbol, strategy, raw, 0, "")
}

func (e *Engine) process(ctx context.Context, symbol, strategy string, raw models.RawSignal, quantity int, orderType models.OrderType) RealtimeResult {
	defer e.metrics.ObserveDuration("process_signal", e.now())

	if quantity <= 0 {
		quantity = e.defaultQuantity
	}
	if orderType == "" {
		orderType = e.orderType
	}

	result := RealtimeResult{Symbol: symbol, Status: StatusNoSignal}

	sig, ok := e.generator.Generate(symbol, strategy, raw, quantity, orderType)
	if !ok {
		result.Reason = "hold"
		e.finish(ctx, &result, strategy, raw.Confidence, quantity)
		return result
	}
	result.Signal = &sig
	result.Action = string(sig.Action)

	if sig.Confidence < e.minConfidence {
		result.Reason = "confidence below minimum"
		e.finish(ctx, &result, strategy, raw.Confidence, quantity)
		return result
	}

	decision := e.risk.Validate(ctx, sig)
	result.Risk = &decision
	if !decision.Passed {
		result.Status = StatusRejected
		result.Reason = decision.Reason
		result.Err = decision.Err()
		e.metrics.RecordRiskRejection(string(decision.Check))
		e.finish(ctx, &result, strategy, raw.Confidence, quantity)
		return result
	}

	exec := e.executor.ExecuteSignal(ctx, sig)
	result.Order = &exec.Order
	if !exec.OK() {
		result.Status = StatusFailed
		result.Failure = exec.Failure
		result.Err = exec.Err
		if exec.Err != nil {
			result.Reason = exec.Err.Error()
		}
		e.metrics.RecordFailure(e.broker.Name(), string(exec.Failure))
		e.finish(ctx, &result, strategy, raw.Confidence, quantity)
		return result
	}

	result.Status = StatusExecuted
	result.OrderID = exec.OrderID
	e.metrics.RecordOrder(e.broker.Name(), string(sig.Action))
	e.metrics.SetPending(len(e.executor.PendingOrders()))
	e.finish(ctx, &result, strategy, raw.Confidence, quantity)
	return result
}

// finish journals the result and counts it.
func (e *Engine) finish(ctx context.Context, r *RealtimeResult, strategy string, confidence float64, quantity int) {
	rec := store.ExecutionRecord{
		Timestamp:  e.now(),
		Symbol:     r.Symbol,
		Strategy:   strategy,
		Action:     r.Action,
		Quantity:   quantity,
		Confidence: confidence,
		Status:     string(r.Status),
		OrderID:    r.OrderID,
		Reason:     r.Reason,
		Failure:    string(r.Failure),
	}
	if r.Risk != nil && !r.Risk.Passed {
		rec.RiskCheck = string(r.Risk.Check)
	}
	if err := e.journal.RecordExecution(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Str("symbol", r.Symbol).Msg("Failed to journal execution")
	}
	e.metrics.RecordSignal(strategy, r.Action, string(r.Status))
}

// OrderUpdate is an order that reached a terminal state during
// reconciliation, with the account state right after it was recorded.
type OrderUpdate struct {
	OrderID      string             `json:"order_id"`
	Status       models.OrderStatus `json:"status"`
	Order        models.Order       `json:"order"`
	RiskSnapshot *risk.Metrics      `json:"risk_snapshot,omitempty"`
}

// ReconcileOrders polls every pending order in registration order. Each
// order seen reaching a terminal state is recorded into the risk ledger,
// journaled and returned once; later passes no longer see it.
func (e *Engine) ReconcileOrders(ctx context.Context) []OrderUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.now()
	defer e.metrics.ObserveDuration("reconcile", start)

	polled := e.executor.PollPending(ctx)
	updates := make([]OrderUpdate, 0)

	for _, u := range polled {
		if !u.Terminal {
			continue
		}

		e.risk.RecordTrade(u.Order)
		update := OrderUpdate{OrderID: u.OrderID, Status: u.Status, Order: u.Order}

		snapshot, err := e.risk.Metrics(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Str("order_id", u.OrderID).Msg("Risk snapshot unavailable")
		} else {
			update.RiskSnapshot = &snapshot
			e.metrics.RecordAccount(snapshot.Equity, snapshot.Cash, snapshot.CurrentDrawdown, snapshot.DailyPnL)
		}

		if err := e.journal.RecordOrderUpdate(ctx, orderUpdateRecord(update, e.now())); err != nil {
			e.logger.Warn().Err(err).Str("order_id", u.OrderID).Msg("Failed to journal order update")
		}
		e.metrics.RecordReconciled(string(u.Status))
		updates = append(updates, update)
	}

	e.metrics.SetPending(len(e.executor.PendingOrders()))
	logging.LogReconcile(e.logger, len(polled), len(updates), e.now().Sub(start))
	return updates
}

func orderUpdateRecord(u OrderUpdate, ts time.Time) store.OrderUpdateRecord {
	rec := store.OrderUpdateRecord{
		Timestamp:   ts,
		OrderID:     u.OrderID,
		Symbol:      u.Order.Symbol,
		Side:        string(u.Order.Side),
		Strategy:    u.Order.Strategy,
		Status:      string(u.Status),
		Quantity:    u.Order.Quantity,
		FilledQty:   u.Order.FilledQty,
		FilledPrice: u.Order.FilledPrice,
	}
	if s := u.RiskSnapshot; s != nil {
		rec.Equity = s.Equity
		rec.Cash = s.Cash
		rec.DailyPnL = s.DailyPnL
		rec.Drawdown = s.CurrentDrawdown
	}
	return rec
}

// ProcessBatch generates signals for every symbol and strategy result,
// validates them together against the current account and submits the
// ones that pass. Signals are validated independently of each other.
func (e *Engine) ProcessBatch(ctx context.Context, symbols []string, results map[string]map[string]models.RawSignal, quantity int, orderType models.OrderType) []RealtimeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity <= 0 {
		quantity = e.defaultQuantity
	}
	if orderType == "" {
		orderType = e.orderType
	}

	signals := e.generator.GenerateBatch(symbols, results, quantity, orderType)
	signals = signal.Filter(signals, e.minConfidence, 0)

	out := make([]RealtimeResult, 0, len(signals))
	for _, br := range e.risk.ValidateBatch(ctx, signals) {
		sig := br.Signal
		decision := br.Decision
		result := RealtimeResult{
			Symbol: sig.Symbol,
			Action: string(sig.Action),
			Signal: &sig,
			Risk:   &decision,
		}

		if !decision.Passed {
			result.Status = StatusRejected
			result.Reason = decision.Reason
			result.Err = decision.Err()
			e.metrics.RecordRiskRejection(string(decision.Check))
		} else {
			exec := e.executor.ExecuteSignal(ctx, sig)
			result.Order = &exec.Order
			if exec.OK() {
				result.Status = StatusExecuted
				result.OrderID = exec.OrderID
				e.metrics.RecordOrder(e.broker.Name(), string(sig.Action))
			} else {
				result.Status = StatusFailed
				result.Failure = exec.Failure
				result.Err = exec.Err
				if exec.Err != nil {
					result.Reason = exec.Err.Error()
				}
				e.metrics.RecordFailure(e.broker.Name(), string(exec.Failure))
			}
		}

		e.finish(ctx, &result, sig.Strategy, sig.Confidence, sig.Quantity)
		out = append(out, result)
	}

	e.metrics.SetPending(len(e.executor.PendingOrders()))
	return out
}

// UpdatePeakEquity advances the risk controller's high-water mark and
// refreshes the account gauges.
func (e *Engine) UpdatePeakEquity(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.risk.UpdatePeakEquity(ctx); err != nil {
		return err
	}
	if m, err := e.risk.Metrics(ctx); err == nil {
		e.metrics.RecordAccount(m.Equity, m.Cash, m.CurrentDrawdown, m.DailyPnL)
	}
	return nil
}
