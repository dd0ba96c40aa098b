package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// ZerodhaBroker implements the Broker interface for Zerodha Kite Connect.
type ZerodhaBroker struct {
	client      *kiteconnect.Client
	apiKey      string
	accessToken string
	tokenPath   string
	exchange    string
	product     string
	connected   bool

	// Local order id -> Kite order id
	kiteIDs map[string]string
	// Local view of submitted orders, keyed by local id
	orders map[string]models.Order

	logger zerolog.Logger
	mu     sync.RWMutex
}

// ZerodhaConfig holds configuration for Zerodha broker.
type ZerodhaConfig struct {
	APIKey      string
	AccessToken string
	TokenPath   string
	Exchange    string
	Product     string
	Logger      zerolog.Logger
}

// NewZerodhaBroker creates a new Zerodha broker instance.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "quant-trader", "session.json")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "NSE"
	}
	product := cfg.Product
	if product == "" {
		product = "CNC"
	}

	return &ZerodhaBroker{
		client:      kiteconnect.New(cfg.APIKey),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		tokenPath:   tokenPath,
		exchange:    exchange,
		product:     product,
		kiteIDs:     make(map[string]string),
		orders:      make(map[string]models.Order),
		logger:      cfg.Logger.With().Str("component", "zerodha").Logger(),
	}
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Name returns the broker identifier.
func (z *ZerodhaBroker) Name() string { return "zerodha" }

// Connect sets the access token and verifies the session against the profile
// endpoint. The token comes from configuration or a saved session file.
func (z *ZerodhaBroker) Connect(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.connected {
		return nil
	}

	token := z.accessToken
	if token == "" {
		saved, err := z.loadSession()
		if err != nil {
			return errors.NewBrokerError(z.Name(), "connect", "no access token", errors.ErrNotAuthenticated)
		}
		token = saved
	}

	z.client.SetAccessToken(token)
	if _, err := z.client.GetUserProfile(); err != nil {
		return errors.NewBrokerError(z.Name(), "connect", "session verification failed", err)
	}

	z.accessToken = token
	z.connected = true
	z.logger.Info().Msg("Connected to Kite Connect")
	return nil
}

// Disconnect drops the local session. The access token stays valid at Kite
// until it expires.
func (z *ZerodhaBroker) Disconnect(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.connected = false
	return nil
}

// IsConnected returns whether the session was verified.
func (z *ZerodhaBroker) IsConnected() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.connected
}

func (z *ZerodhaBroker) loadSession() (string, error) {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return "", err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return "", err
	}

	// Zerodha tokens expire at 6 AM next day
	if time.Now().After(session.ExpiresAt) {
		return "", fmt.Errorf("session expired")
	}
	return session.AccessToken, nil
}

// SubmitOrder places a regular order tagged with the local order id. The
// returned record is pending until reconciliation observes a final status.
func (z *ZerodhaBroker) SubmitOrder(ctx context.Context, order models.Order) (models.Order, error) {
	order.Status = models.StatusPending
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now()
	}

	if !z.IsConnected() {
		order.Status = models.StatusRejected
		return order, errors.Rejected(order.ID, order.Symbol, string(order.Side), "not connected", errors.ErrNotConnected)
	}

	params := kiteconnect.OrderParams{
		Exchange:        z.exchange,
		Tradingsymbol:   order.Symbol,
		TransactionType: strings.ToUpper(string(order.Side)),
		OrderType:       kiteOrderType(order.Type),
		Product:         z.product,
		Quantity:        order.Quantity,
		Validity:        "DAY",
		Tag:             kiteTag(order.ID),
	}
	if limit, ok := order.LimitPrice(); ok {
		switch order.Type {
		case models.OrderTypeStop:
			params.TriggerPrice = limit
		case models.OrderTypeStopLimit:
			params.Price = limit
			params.TriggerPrice = limit
		default:
			params.Price = limit
		}
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		order.Status = models.StatusRejected
		z.remember(order, "")
		brokerErr := errors.NewBrokerError(z.Name(), "place_order", err.Error(), err)
		if isKiteRefusal(err) {
			return order, errors.Rejected(order.ID, order.Symbol, string(order.Side), "kite refused order", brokerErr)
		}
		return order, brokerErr
	}

	z.remember(order, resp.OrderID)
	z.logger.Info().
		Str("order_id", order.ID).
		Str("kite_order_id", resp.OrderID).
		Str("symbol", order.Symbol).
		Msg("Order placed")
	return order, nil
}

func (z *ZerodhaBroker) remember(order models.Order, kiteID string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.orders[order.ID] = order
	if kiteID != "" {
		z.kiteIDs[order.ID] = kiteID
	}
}

// CancelOrder cancels an open order.
func (z *ZerodhaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if !z.IsConnected() {
		return errors.ErrNotConnected
	}

	z.mu.RLock()
	kiteID, ok := z.kiteIDs[orderID]
	z.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownOrder, orderID)
	}

	if _, err := z.client.CancelOrder(kiteconnect.VarietyRegular, kiteID, nil); err != nil {
		return errors.NewBrokerError(z.Name(), "cancel_order", "failed to cancel order", err)
	}
	return nil
}

// GetOrderStatus fetches the latest state of an order from its history.
func (z *ZerodhaBroker) GetOrderStatus(ctx context.Context, orderID string) (models.Order, error) {
	z.mu.RLock()
	local, known := z.orders[orderID]
	kiteID, placed := z.kiteIDs[orderID]
	z.mu.RUnlock()

	if !known {
		return models.Order{}, fmt.Errorf("%w: %s", errors.ErrUnknownOrder, orderID)
	}
	if !placed {
		return local, nil
	}
	if !z.IsConnected() {
		return models.Order{}, errors.ErrNotConnected
	}

	history, err := z.client.GetOrderHistory(kiteID)
	if err != nil {
		return models.Order{}, errors.NewBrokerError(z.Name(), "order_history", "failed to get order history", err)
	}
	if len(history) == 0 {
		return local, nil
	}

	latest := history[len(history)-1]
	status := mapKiteStatus(latest.Status)
	if err := local.Transition(status); err != nil {
		// Kite moved a terminal order; keep the local terminal record.
		z.logger.Warn().Err(err).Str("order_id", orderID).Msg("Ignoring status change")
		return local, nil
	}
	local.FilledQty = int(latest.FilledQuantity)
	local.FilledPrice = latest.AveragePrice

	z.mu.Lock()
	z.orders[orderID] = local
	z.mu.Unlock()
	return local, nil
}

// GetAccountBalance fetches equity segment margins.
func (z *ZerodhaBroker) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	if !z.IsConnected() {
		return models.Balance{}, errors.ErrNotConnected
	}

	margins, err := z.client.GetUserMargins()
	if err != nil {
		return models.Balance{}, errors.NewBrokerError(z.Name(), "margins", "failed to get balance", err)
	}

	equity := margins.Equity
	return models.Balance{
		Cash:        equity.Available.Cash,
		Equity:      equity.Net,
		BuyingPower: equity.Available.Cash + equity.Available.Collateral,
	}, nil
}

// GetPositions fetches net positions.
func (z *ZerodhaBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	if !z.IsConnected() {
		return nil, errors.ErrNotConnected
	}

	positions, err := z.client.GetPositions()
	if err != nil {
		return nil, errors.NewBrokerError(z.Name(), "positions", "failed to get positions", err)
	}

	result := make([]models.Position, 0, len(positions.Net))
	for _, p := range positions.Net {
		if p.Quantity == 0 {
			continue
		}
		result = append(result, models.NewPosition(p.Tradingsymbol, int(p.Quantity), p.AveragePrice, p.LastPrice))
	}
	return result, nil
}

// GetCurrentPrice fetches the last traded price.
func (z *ZerodhaBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	if !z.IsConnected() {
		return 0, false
	}

	instrument := z.exchange + ":" + symbol
	ltp, err := z.client.GetLTP(instrument)
	if err != nil {
		z.logger.Debug().Err(err).Str("symbol", symbol).Msg("LTP unavailable")
		return 0, false
	}
	q, ok := ltp[instrument]
	if !ok {
		return 0, false
	}
	return q.LastPrice, true
}

// isKiteRefusal reports whether Kite answered the order with an input or
// order exception. Network, token and general errors are not refusals.
func isKiteRefusal(err error) bool {
	var kerr kiteconnect.Error
	if !errors.As(err, &kerr) {
		return false
	}
	return kerr.ErrorType == kiteconnect.InputError || kerr.ErrorType == kiteconnect.OrderError
}

// mapKiteStatus maps a Kite order status onto the local lifecycle.
func mapKiteStatus(status string) models.OrderStatus {
	switch strings.ToUpper(status) {
	case "COMPLETE":
		return models.StatusFilled
	case "CANCELLED":
		return models.StatusCancelled
	case "REJECTED":
		return models.StatusRejected
	default:
		return models.StatusPending
	}
}

func kiteOrderType(t models.OrderType) string {
	switch t {
	case models.OrderTypeLimit:
		return "LIMIT"
	case models.OrderTypeStop:
		return "SL-M"
	case models.OrderTypeStopLimit:
		return "SL"
	default:
		return "MARKET"
	}
}

// kiteTag trims an id to Kite's 20 character tag limit.
func kiteTag(id string) string {
	if len(id) > 20 {
		return id[len(id)-20:]
	}
	return id
}

// Ensure ZerodhaBroker implements Broker interface
var _ Broker = (*ZerodhaBroker)(nil)
