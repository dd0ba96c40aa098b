package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/pkg/utils"
)

// DefaultFinnhubURL is the Finnhub trades WebSocket endpoint.
const DefaultFinnhubURL = "wss://ws.finnhub.io"

// FinnhubFeed is a market-data-only broker backed by the Finnhub trades
// stream. It keeps the last trade price per subscribed symbol. Trading and
// account operations return an *errors.UnsupportedError.
type FinnhubFeed struct {
	apiKey       string
	websocketURL string
	symbols      []string
	pingInterval time.Duration
	dialer       *websocket.Dialer
	retry        utils.RetryConfig

	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	prices  map[string]float64
	updated map[string]time.Time

	logger  zerolog.Logger
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// FinnhubConfig holds configuration for the Finnhub feed.
type FinnhubConfig struct {
	APIKey       string
	WebsocketURL string
	Symbols      []string
	PingInterval time.Duration
	Retry        *utils.RetryConfig // dial retries, DefaultRetryConfig when nil
	Logger       zerolog.Logger
}

// NewFinnhubFeed creates a new Finnhub market data feed.
func NewFinnhubFeed(cfg FinnhubConfig) *FinnhubFeed {
	url := cfg.WebsocketURL
	if url == "" {
		url = DefaultFinnhubURL
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = 20 * time.Second
	}
	retry := utils.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &FinnhubFeed{
		apiKey:       cfg.APIKey,
		websocketURL: url,
		symbols:      append([]string(nil), cfg.Symbols...),
		pingInterval: ping,
		dialer:       websocket.DefaultDialer,
		retry:        retry,
		prices:       make(map[string]float64),
		updated:      make(map[string]time.Time),
		logger:       cfg.Logger.With().Str("component", "finnhub").Logger(),
	}
}

// Name returns the broker identifier.
func (f *FinnhubFeed) Name() string { return "finnhub" }

// Connect dials the WebSocket, subscribes to the configured symbols and
// starts the read and ping loops. The dial and its retries run without the
// feed lock.
func (f *FinnhubFeed) Connect(ctx context.Context) error {
	if f.IsConnected() {
		return nil
	}

	u := fmt.Sprintf("%s?token=%s", f.websocketURL, f.apiKey)
	conn, err := utils.RetryWithResult(ctx, f.retry, func() (*websocket.Conn, error) {
		c, _, err := f.dialer.DialContext(ctx, u, nil)
		return c, err
	})
	if err != nil {
		return errors.NewBrokerError(f.Name(), "connect", "dial failed", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected {
		// Another caller connected while we were dialing.
		_ = conn.Close()
		return nil
	}
	f.conn = conn

	for _, s := range f.symbols {
		if err := f.writeJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			_ = conn.Close()
			f.conn = nil
			return errors.NewBrokerError(f.Name(), "subscribe", s, err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.connected = true

	f.wg.Add(2)
	go f.readLoop(loopCtx, conn)
	go f.pingLoop(loopCtx, conn)

	f.logger.Info().Strs("symbols", f.symbols).Msg("Connected to Finnhub")
	return nil
}

// Disconnect stops the loops and closes the connection.
func (f *FinnhubFeed) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	conn := f.conn
	f.release()
	f.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	f.wg.Wait()
	return err
}

// release stops the loops of the current connection and forgets it.
// Callers hold f.mu and close the connection themselves.
func (f *FinnhubFeed) release() {
	f.connected = false
	f.conn = nil
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// IsConnected indicates status.
func (f *FinnhubFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// writeJSON serializes writes; gorilla connections allow one concurrent writer.
// Callers hold f.mu so f.conn is stable.
func (f *FinnhubFeed) writeJSON(v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteJSON(v)
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// readLoop applies frames until the connection fails. A dropped connection
// is released here so a later Connect starts clean.
func (f *FinnhubFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer f.wg.Done()
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error().Err(err).Msg("Finnhub read failed")
			f.mu.Lock()
			if f.conn == conn {
				f.release()
			}
			f.mu.Unlock()
			_ = conn.Close()
			return
		}
		f.handleMessage(b)
	}
}

func (f *FinnhubFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.writeMu.Lock()
			_ = conn.WriteMessage(websocket.PingMessage, nil)
			f.writeMu.Unlock()
		}
	}
}

// handleMessage applies a trade frame to the price cache. Other frames are ignored.
func (f *FinnhubFeed) handleMessage(b []byte) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return
	}
	if m.Type != "trade" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range m.Data {
		ts := time.UnixMilli(d.T)
		if last, ok := f.updated[d.S]; ok && ts.Before(last) {
			continue
		}
		f.prices[d.S] = d.P
		f.updated[d.S] = ts
	}
}

// GetCurrentPrice returns the last trade price seen for symbol.
func (f *FinnhubFeed) GetCurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[symbol]
	return price, ok
}

// SubmitOrder is not supported by a market data feed.
func (f *FinnhubFeed) SubmitOrder(ctx context.Context, order models.Order) (models.Order, error) {
	return order, errors.NewUnsupportedError(f.Name(), "submit_order")
}

// CancelOrder is not supported by a market data feed.
func (f *FinnhubFeed) CancelOrder(ctx context.Context, orderID string) error {
	return errors.NewUnsupportedError(f.Name(), "cancel_order")
}

// GetOrderStatus is not supported by a market data feed.
func (f *FinnhubFeed) GetOrderStatus(ctx context.Context, orderID string) (models.Order, error) {
	return models.Order{}, errors.NewUnsupportedError(f.Name(), "get_order_status")
}

// GetAccountBalance is not supported by a market data feed.
func (f *FinnhubFeed) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	return models.Balance{}, errors.NewUnsupportedError(f.Name(), "get_account_balance")
}

// GetPositions is not supported by a market data feed.
func (f *FinnhubFeed) GetPositions(ctx context.Context) ([]models.Position, error) {
	return nil, errors.NewUnsupportedError(f.Name(), "get_positions")
}

var (
	_ Broker = (*FinnhubFeed)(nil)
	_ Feed   = (*FinnhubFeed)(nil)
)
