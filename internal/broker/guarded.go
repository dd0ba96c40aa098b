package broker

import (
	"context"
	"fmt"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/internal/resilience"
)

// GuardedBroker wraps a live backend with a circuit breaker. Transport
// failures trip the circuit; broker refusals do not. While the circuit is
// open every call fails fast with an error wrapping errors.ErrNotConnected.
type GuardedBroker struct {
	Broker
	breaker *resilience.CircuitBreaker
}

// NewGuardedBroker wraps b. The breaker's IsFailure is replaced with
// IsTransportFailure.
func NewGuardedBroker(b Broker, cfg resilience.CircuitBreakerConfig) *GuardedBroker {
	cfg.IsFailure = IsTransportFailure
	return &GuardedBroker{
		Broker:  b,
		breaker: resilience.NewCircuitBreaker(b.Name(), cfg),
	}
}

// IsTransportFailure reports whether err says the backend is unreachable or
// broken, as opposed to an answer about the request itself.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, refusal := range []error{
		errors.ErrOrderRejected,
		errors.ErrInsufficientFunds,
		errors.ErrInsufficientPosition,
		errors.ErrInvalidOrder,
		errors.ErrUnknownOrder,
		errors.ErrNotCancelable,
		errors.ErrUnsupported,
		errors.ErrNoQuote,
	} {
		if errors.Is(err, refusal) {
			return false
		}
	}
	return true
}

// Breaker exposes the circuit for inspection.
func (g *GuardedBroker) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

func (g *GuardedBroker) openErr(op string, err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return errors.NewBrokerError(g.Name(), op, "circuit open", fmt.Errorf("%w: %w", errors.ErrNotConnected, err))
	}
	return err
}

// Connect connects the backend and closes the circuit on success.
func (g *GuardedBroker) Connect(ctx context.Context) error {
	if err := g.Broker.Connect(ctx); err != nil {
		return err
	}
	g.breaker.Reset()
	return nil
}

// SubmitOrder submits through the circuit.
func (g *GuardedBroker) SubmitOrder(ctx context.Context, order models.Order) (models.Order, error) {
	out, err := resilience.ExecuteWithResult(g.breaker, func() (models.Order, error) {
		return g.Broker.SubmitOrder(ctx, order)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return order, g.openErr("submit_order", err)
	}
	return out, err
}

// CancelOrder cancels through the circuit.
func (g *GuardedBroker) CancelOrder(ctx context.Context, orderID string) error {
	err := g.breaker.Execute(func() error {
		return g.Broker.CancelOrder(ctx, orderID)
	})
	return g.openErr("cancel_order", err)
}

// GetOrderStatus polls through the circuit.
func (g *GuardedBroker) GetOrderStatus(ctx context.Context, orderID string) (models.Order, error) {
	out, err := resilience.ExecuteWithResult(g.breaker, func() (models.Order, error) {
		return g.Broker.GetOrderStatus(ctx, orderID)
	})
	return out, g.openErr("order_status", err)
}

// GetAccountBalance reads the balance through the circuit.
func (g *GuardedBroker) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	out, err := resilience.ExecuteWithResult(g.breaker, func() (models.Balance, error) {
		return g.Broker.GetAccountBalance(ctx)
	})
	return out, g.openErr("account_balance", err)
}

// GetPositions reads positions through the circuit.
func (g *GuardedBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	out, err := resilience.ExecuteWithResult(g.breaker, func() ([]models.Position, error) {
		return g.Broker.GetPositions(ctx)
	})
	return out, g.openErr("positions", err)
}
