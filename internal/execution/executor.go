// Package execution converts validated signals into broker orders and tracks
// their lifecycle.
package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// FailureKind classifies why a signal did not produce an accepted order.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureInvalidSignal FailureKind = "invalid_signal"
	FailureNotConnected  FailureKind = "not_connected"
	FailureNoQuote       FailureKind = "no_quote"
	FailureRejected      FailureKind = "rejected"
	FailureUnsupported   FailureKind = "unsupported"
	FailureInternal      FailureKind = "internal"
)

// classify maps a submission error onto a failure kind.
func classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, errors.ErrUnsupported):
		return FailureUnsupported
	case errors.Is(err, errors.ErrNotConnected):
		return FailureNotConnected
	case errors.Is(err, errors.ErrNoQuote):
		return FailureNoQuote
	case errors.Is(err, errors.ErrOrderRejected):
		return FailureRejected
	default:
		return FailureInternal
	}
}

// ExecutionResult is the outcome of ExecuteSignal. OrderID is empty unless
// the broker accepted the order.
type ExecutionResult struct {
	OrderID string       `json:"order_id,omitempty"`
	Order   models.Order `json:"order"`
	Failure FailureKind  `json:"failure,omitempty"`
	Err     error        `json:"-"`
}

// OK reports whether the order was accepted.
func (r ExecutionResult) OK() bool {
	return r.Failure == FailureNone && r.OrderID != ""
}

// StatusUpdate is the result of polling one pending order.
type StatusUpdate struct {
	OrderID  string             `json:"order_id"`
	Previous models.OrderStatus `json:"previous"`
	Status   models.OrderStatus `json:"status"`
	Order    models.Order       `json:"order"`
	Terminal bool               `json:"terminal"` // the order left the pending set in this poll
}

// Executor submits orders and mirrors their broker-side status. Accepted
// orders stay pending, in registration order, until a poll observes a
// terminal status.
type Executor struct {
	broker broker.Broker

	pending    map[string]models.Order
	pendingIDs []string
	completed  []models.Order
	failed     []models.Order

	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewExecutor creates a new order executor.
func NewExecutor(b broker.Broker, logger zerolog.Logger) *Executor {
	e := &Executor{
		broker:  b,
		pending: make(map[string]models.Order),
		now:     time.Now,
		logger:  logging.WithComponent(logger, "executor"),
	}
	e.newID = e.generateOrderID
	return e
}

// generateOrderID returns ORD_<yyyymmdd_hhmmss>_<8 hex chars>.
func (e *Executor) generateOrderID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("ORD_%s_%s", e.now().Format("20060102_150405"), suffix)
}

func (e *Executor) signalToOrder(sig models.TradingSignal) models.Order {
	ts := sig.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	orderType := sig.OrderType
	if orderType == "" {
		orderType = models.OrderTypeMarket
	}
	var price *float64
	if sig.Price != nil {
		price = models.Float(*sig.Price)
	}

	return models.Order{
		ID:        e.newID(),
		Symbol:    sig.Symbol,
		Side:      models.ParseOrderSide(string(sig.Action)),
		Quantity:  sig.Quantity,
		Type:      orderType,
		Price:     price,
		Status:    models.StatusPending,
		Timestamp: ts,
		Strategy:  sig.Strategy,
	}
}

// ExecuteSignal builds an order from sig and submits it. Accepted orders are
// registered as pending; refused ones are kept in the failed list.
func (e *Executor) ExecuteSignal(ctx context.Context, sig models.TradingSignal) ExecutionResult {
	order := e.signalToOrder(sig)
	logger := logging.WithOrderID(e.logger, order.ID)

	if strings.TrimSpace(sig.Symbol) == "" || sig.Quantity <= 0 {
		err := errors.NewValidationError("signal", sig.Quantity, "symbol and positive quantity required")
		order.Status = models.StatusRejected
		e.addFailed(order)
		logger.Warn().Err(err).Msg("Invalid signal")
		return ExecutionResult{Order: order, Failure: FailureInvalidSignal, Err: err}
	}

	submitted, err := e.submit(ctx, order)
	if err != nil {
		kind := classify(err)
		if submitted.ID == "" {
			submitted = order
		}
		if !submitted.Status.IsTerminal() {
			submitted.Status = models.StatusRejected
		}
		e.addFailed(submitted)

		event := logger.Error()
		if kind == FailureRejected || kind == FailureNoQuote || kind == FailureNotConnected {
			event = logger.Warn()
		}
		event.Err(err).
			Str("failure", string(kind)).
			Str("symbol", order.Symbol).
			Str("side", string(order.Side)).
			Int("quantity", order.Quantity).
			Msg("Order submission failed")
		return ExecutionResult{Order: submitted, Failure: kind, Err: err}
	}

	e.mu.Lock()
	e.pending[submitted.ID] = submitted
	e.pendingIDs = append(e.pendingIDs, submitted.ID)
	e.mu.Unlock()

	logging.LogOrder(logger, submitted.ID, submitted.Symbol, string(submitted.Side), string(submitted.Status))
	return ExecutionResult{OrderID: submitted.ID, Order: submitted}
}

// submit calls the broker, turning a panic in a backend into an error.
func (e *Executor) submit(ctx context.Context, order models.Order) (result models.Order, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = order
			err = fmt.Errorf("broker %s panicked: %v", e.broker.Name(), r)
		}
	}()
	return e.broker.SubmitOrder(ctx, order)
}

func (e *Executor) addFailed(order models.Order) {
	e.mu.Lock()
	e.failed = append(e.failed, order)
	e.mu.Unlock()
}

// removePending drops id from the pending set. Callers hold e.mu.
func (e *Executor) removePending(id string) (models.Order, bool) {
	order, ok := e.pending[id]
	if !ok {
		return models.Order{}, false
	}
	delete(e.pending, id)
	for i, pid := range e.pendingIDs {
		if pid == id {
			e.pendingIDs = append(e.pendingIDs[:i], e.pendingIDs[i+1:]...)
			break
		}
	}
	return order, true
}

// CancelOrder asks the broker to cancel id. Once the broker confirms, a
// pending order moves to the completed list as cancelled.
func (e *Executor) CancelOrder(ctx context.Context, id string) error {
	if err := e.broker.CancelOrder(ctx, id); err != nil {
		e.logger.Warn().Err(err).Str("order_id", id).Msg("Cancel failed")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.removePending(id)
	if !ok {
		return nil
	}
	if err := order.Transition(models.StatusCancelled); err != nil {
		return err
	}
	e.completed = append(e.completed, order)
	logging.LogOrder(e.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return nil
}

// UpdateOrderStatus polls the broker for id. It returns false when the
// broker has no record or the poll failed.
func (e *Executor) UpdateOrderStatus(ctx context.Context, id string) (models.OrderStatus, bool) {
	update, ok := e.poll(ctx, id)
	if !ok {
		return "", false
	}
	return update.Status, true
}

func (e *Executor) poll(ctx context.Context, id string) (StatusUpdate, bool) {
	remote, err := e.broker.GetOrderStatus(ctx, id)
	if err != nil {
		e.logger.Warn().Err(err).Str("order_id", id).Msg("Status poll failed")
		return StatusUpdate{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	local, pending := e.pending[id]
	if !pending {
		return StatusUpdate{OrderID: id, Previous: remote.Status, Status: remote.Status, Order: remote}, true
	}

	update := StatusUpdate{OrderID: id, Previous: local.Status}
	if err := local.Transition(remote.Status); err != nil {
		e.logger.Error().Err(err).Str("order_id", id).Msg("Broker reported an impossible transition")
		return StatusUpdate{}, false
	}
	local.FilledQty = remote.FilledQty
	local.FilledPrice = remote.FilledPrice
	update.Status = local.Status
	update.Order = local

	if local.Status.IsTerminal() {
		e.removePending(id)
		e.completed = append(e.completed, local)
		update.Terminal = true
		logging.LogOrder(e.logger, local.ID, local.Symbol, string(local.Side), string(local.Status))
	} else {
		e.pending[id] = local
	}
	return update, true
}

// PollPending polls every pending order in registration order. The id list
// is snapshotted first, so orders added during the pass are not visited.
func (e *Executor) PollPending(ctx context.Context) []StatusUpdate {
	e.mu.Lock()
	ids := make([]string, len(e.pendingIDs))
	copy(ids, e.pendingIDs)
	e.mu.Unlock()

	updates := make([]StatusUpdate, 0, len(ids))
	for _, id := range ids {
		if update, ok := e.poll(ctx, id); ok {
			updates = append(updates, update)
		}
	}
	return updates
}

// UpdateAllPendingOrders polls every pending order and returns the status
// of each one the broker answered for.
func (e *Executor) UpdateAllPendingOrders(ctx context.Context) map[string]models.OrderStatus {
	results := make(map[string]models.OrderStatus)
	for _, u := range e.PollPending(ctx) {
		results[u.OrderID] = u.Status
	}
	return results
}

// Order looks up id in the pending, completed and failed lists, in that order.
func (e *Executor) Order(id string) (models.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o, ok := e.pending[id]; ok {
		return o, true
	}
	for _, o := range e.completed {
		if o.ID == id {
			return o, true
		}
	}
	for _, o := range e.failed {
		if o.ID == id {
			return o, true
		}
	}
	return models.Order{}, false
}

// PendingOrders returns pending orders in registration order.
func (e *Executor) PendingOrders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Order, 0, len(e.pendingIDs))
	for _, id := range e.pendingIDs {
		out = append(out, e.pending[id])
	}
	return out
}

// CompletedOrders returns orders that reached a terminal state after acceptance.
func (e *Executor) CompletedOrders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Order(nil), e.completed...)
}

// FailedOrders returns orders the broker refused.
func (e *Executor) FailedOrders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Order(nil), e.failed...)
}

// Statistics aggregates order counts.
type Statistics struct {
	Total     int `json:"total_orders"`
	Pending   int `json:"pending_orders"`
	Filled    int `json:"filled_orders"`
	Cancelled int `json:"cancelled_orders"`
	Rejected  int `json:"rejected_orders"` // rejected after acceptance
	Failed    int `json:"failed_orders"`
}

// Statistics returns counts across the pending, completed and failed lists.
func (e *Executor) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		Total:   len(e.pending) + len(e.completed) + len(e.failed),
		Pending: len(e.pending),
		Failed:  len(e.failed),
	}
	for _, o := range e.completed {
		switch o.Status {
		case models.StatusFilled:
			stats.Filled++
		case models.StatusCancelled:
			stats.Cancelled++
		case models.StatusRejected:
			stats.Rejected++
		}
	}
	return stats
}

// AccountInfo is the broker's balance with its positions.
type AccountInfo struct {
	Balance   models.Balance    `json:"balance"`
	Positions []models.Position `json:"positions"`
}

// AccountInfo reads balance and positions from the broker.
func (e *Executor) AccountInfo(ctx context.Context) (AccountInfo, error) {
	balance, err := e.broker.GetAccountBalance(ctx)
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "reading balance")
	}
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "reading positions")
	}
	return AccountInfo{Balance: balance, Positions: positions}, nil
}
