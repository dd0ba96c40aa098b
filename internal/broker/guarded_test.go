package broker

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/internal/resilience"
)

var errGateway = stderrors.New("502 bad gateway")

// flakyBroker is a paper broker whose order calls fail while down is set.
type flakyBroker struct {
	*PaperBroker
	down  bool
	calls int
}

func (f *flakyBroker) SubmitOrder(ctx context.Context, order models.Order) (models.Order, error) {
	f.calls++
	if f.down {
		return order, errGateway
	}
	return f.PaperBroker.SubmitOrder(ctx, order)
}

func (f *flakyBroker) GetOrderStatus(ctx context.Context, orderID string) (models.Order, error) {
	f.calls++
	if f.down {
		return models.Order{}, errGateway
	}
	return f.PaperBroker.GetOrderStatus(ctx, orderID)
}

func newGuarded(threshold int) (*GuardedBroker, *flakyBroker) {
	inner := &flakyBroker{PaperBroker: newTestPaper(100000, map[string]float64{"AAPL": 150})}
	return NewGuardedBroker(inner, resilience.CircuitBreakerConfig{FailureThreshold: threshold, Cooldown: time.Hour}), inner
}

func buyOrder(id string, qty int) models.Order {
	return models.Order{ID: id, Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: qty}
}

func TestGuardedBroker_OpensOnTransportFailures(t *testing.T) {
	ctx := context.Background()
	g, inner := newGuarded(2)
	inner.down = true

	for i := 0; i < 2; i++ {
		_, err := g.SubmitOrder(ctx, buyOrder("o", 1))
		assert.ErrorIs(t, err, errGateway)
	}
	assert.Equal(t, resilience.CircuitOpen, g.Breaker().State())

	order, err := g.SubmitOrder(ctx, buyOrder("o3", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, "o3", order.ID)
	assert.Equal(t, 2, inner.calls)

	_, err = g.GetOrderStatus(ctx, "o")
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	assert.Equal(t, 2, inner.calls)
}

func TestGuardedBroker_RefusalsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuarded(1)

	for i := 0; i < 3; i++ {
		order, err := g.SubmitOrder(ctx, buyOrder("big", 10000))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrOrderRejected))
		assert.Equal(t, models.StatusRejected, order.Status)
	}
	assert.Equal(t, resilience.CircuitClosed, g.Breaker().State())

	filled, err := g.SubmitOrder(ctx, buyOrder("ok", 1))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, filled.Status)
}

func TestGuardedBroker_ConnectResets(t *testing.T) {
	ctx := context.Background()
	g, inner := newGuarded(1)
	inner.down = true

	_, err := g.SubmitOrder(ctx, buyOrder("o", 1))
	require.Error(t, err)
	require.Equal(t, resilience.CircuitOpen, g.Breaker().State())

	inner.down = false
	require.NoError(t, g.Connect(ctx))
	assert.Equal(t, resilience.CircuitClosed, g.Breaker().State())
	assert.Equal(t, "paper", g.Name())

	price, ok := g.GetCurrentPrice(ctx, "AAPL")
	assert.True(t, ok)
	assert.Equal(t, 150.0, price)
}

func TestIsTransportFailure(t *testing.T) {
	assert.False(t, IsTransportFailure(nil))
	assert.False(t, IsTransportFailure(errors.Rejected("o", "AAPL", "BUY", "funds", errors.ErrInsufficientFunds)))
	assert.False(t, IsTransportFailure(errors.NewUnsupportedError("finnhub", "submit_order")))
	assert.False(t, IsTransportFailure(errors.ErrUnknownOrder))
	assert.True(t, IsTransportFailure(errGateway))
	assert.True(t, IsTransportFailure(errors.NewBrokerError("zerodha", "connect", "dial failed", errGateway)))
}

// newTestZerodha returns a Kite adapter pointed at baseURI with the session
// already verified.
func newTestZerodha(baseURI string) *ZerodhaBroker {
	z := NewZerodhaBroker(ZerodhaConfig{APIKey: "key", AccessToken: "token", TokenPath: "unused"})
	z.client.SetBaseURI(baseURI)
	z.connected = true
	return z
}

func TestGuardedBroker_UnreachableKiteTripsCircuit(t *testing.T) {
	ctx := context.Background()
	z := newTestZerodha("http://127.0.0.1:1")
	g := NewGuardedBroker(z, resilience.CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := g.SubmitOrder(ctx, buyOrder("down", 1))
		require.Error(t, err)
		assert.False(t, errors.Is(err, errors.ErrOrderRejected))
		assert.True(t, IsTransportFailure(err))
	}
	assert.Equal(t, resilience.CircuitOpen, g.Breaker().State())

	_, err := g.SubmitOrder(ctx, buyOrder("down", 1))
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
}

func TestGuardedBroker_KiteInputExceptionIsRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","error_type":"InputException","message":"invalid quantity"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	g := NewGuardedBroker(newTestZerodha(srv.URL), resilience.CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		order, err := g.SubmitOrder(ctx, buyOrder("bad", 1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrOrderRejected))
		assert.Equal(t, models.StatusRejected, order.Status)
	}
	assert.Equal(t, resilience.CircuitClosed, g.Breaker().State())
}
