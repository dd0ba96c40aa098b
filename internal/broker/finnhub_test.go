package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

func TestFinnhubFeed_HandleMessage(t *testing.T) {
	f := NewFinnhubFeed(FinnhubConfig{APIKey: "k"})
	ctx := context.Background()

	f.handleMessage([]byte(`{"type":"ping"}`))
	f.handleMessage([]byte(`not json`))
	_, ok := f.GetCurrentPrice(ctx, "AAPL")
	assert.False(t, ok)

	f.handleMessage([]byte(`{"type":"trade","data":[{"s":"AAPL","p":150.5,"v":10,"t":2000}]}`))
	price, ok := f.GetCurrentPrice(ctx, "AAPL")
	require.True(t, ok)
	assert.Equal(t, 150.5, price)

	// Out-of-order trades do not overwrite a newer price.
	f.handleMessage([]byte(`{"type":"trade","data":[{"s":"AAPL","p":149,"v":1,"t":1000}]}`))
	price, _ = f.GetCurrentPrice(ctx, "AAPL")
	assert.Equal(t, 150.5, price)
}

func TestFinnhubFeed_TradingIsUnsupported(t *testing.T) {
	f := NewFinnhubFeed(FinnhubConfig{APIKey: "k"})
	ctx := context.Background()

	order, err := f.SubmitOrder(ctx, models.Order{ID: "o1", Symbol: "AAPL"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
	assert.Equal(t, "o1", order.ID)

	var unsupported *errors.UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "finnhub", unsupported.Broker)

	assert.True(t, errors.Is(f.CancelOrder(ctx, "o1"), errors.ErrUnsupported))
	_, err = f.GetOrderStatus(ctx, "o1")
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
	_, err = f.GetAccountBalance(ctx)
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
	_, err = f.GetPositions(ctx)
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
}

func TestFinnhubFeed_StreamsTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg["symbol"]

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","data":[{"s":"AAPL","p":151.25,"v":5,"t":1700000000000}]}`))

		// Hold the connection until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := NewFinnhubFeed(FinnhubConfig{
		APIKey:       "secret",
		WebsocketURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:      []string{"AAPL"},
		PingInterval: time.Hour,
	})
	ctx := context.Background()

	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.Connect(ctx))
	assert.True(t, f.IsConnected())

	select {
	case s := <-subscribed:
		assert.Equal(t, "AAPL", s)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe message")
	}

	require.Eventually(t, func() bool {
		_, ok := f.GetCurrentPrice(ctx, "AAPL")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	price, _ := f.GetCurrentPrice(ctx, "AAPL")
	assert.Equal(t, 151.25, price)

	require.NoError(t, f.Disconnect(ctx))
	assert.False(t, f.IsConnected())
	require.NoError(t, f.Disconnect(ctx))
}

func TestFinnhubFeed_ReconnectAfterServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var accepted int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if atomic.AddInt32(&accepted, 1) == 1 {
			// First session: drop it straight away.
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := NewFinnhubFeed(FinnhubConfig{
		APIKey:       "k",
		WebsocketURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		PingInterval: time.Hour,
	})
	ctx := context.Background()

	require.NoError(t, f.Connect(ctx))
	require.Eventually(t, func() bool { return !f.IsConnected() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.Connect(ctx))
	assert.True(t, f.IsConnected())
	assert.EqualValues(t, 2, atomic.LoadInt32(&accepted))

	done := make(chan error, 1)
	go func() { done <- f.Disconnect(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect waited on a loop from the dropped session")
	}
	assert.False(t, f.IsConnected())
}

func TestPaperBroker_UsesFeedForPrices(t *testing.T) {
	feed := NewFinnhubFeed(FinnhubConfig{APIKey: "k"})
	feed.handleMessage([]byte(`{"type":"trade","data":[{"s":"MSFT","p":400,"v":1,"t":1}]}`))

	p := NewPaperBroker(PaperBrokerConfig{InitialCapital: 100000, CommissionRate: DefaultCommissionRate, Feed: feed})
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	order, err := p.SubmitOrder(context.Background(), models.Order{ID: "m", Symbol: "MSFT", Side: models.OrderSideBuy, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 400.0, order.FilledPrice)
}
