package trading

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/execution"
	"github.com/Bing4Ever/quant-trading-sub001/internal/metrics"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/internal/risk"
	"github.com/Bing4Ever/quant-trading-sub001/internal/store"
)

func TestEngine_AAPLRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, map[string]float64{"AAPL": 150})
	journal := &memJournal{}
	e := newEngine(t, p, relaxedLimits(), journal)

	buy := e.ProcessRealtimeSignal(ctx, RealtimeRequest{
		Symbol: "AAPL", Strategy: "manual", Action: "BUY", Confidence: 0.9, Quantity: 100,
	})
	require.Equal(t, StatusExecuted, buy.Status, buy.Reason)
	require.NotEmpty(t, buy.OrderID)
	require.NotNil(t, buy.Risk)
	assert.True(t, buy.Risk.Passed)
	assert.Len(t, e.Executor().PendingOrders(), 1)

	updates := e.ReconcileOrders(ctx)
	require.Len(t, updates, 1)
	assert.Equal(t, buy.OrderID, updates[0].OrderID)
	assert.Equal(t, models.StatusFilled, updates[0].Status)
	assert.Equal(t, 150.0, updates[0].Order.FilledPrice)
	require.NotNil(t, updates[0].RiskSnapshot)
	assert.InDelta(t, 84985.0, updates[0].RiskSnapshot.Cash, 1e-6)
	assert.InDelta(t, 99985.0, updates[0].RiskSnapshot.Equity, 1e-6)
	assert.Len(t, e.Risk().DailyTrades(), 1)

	assert.Empty(t, e.ReconcileOrders(ctx), "nothing changed at the broker")

	p.SetPrice("AAPL", 160)
	sell := e.ProcessRealtimeSignal(ctx, RealtimeRequest{
		Symbol: "AAPL", Strategy: "manual", Action: "sell", Confidence: 0.8, Quantity: 100,
	})
	require.Equal(t, StatusExecuted, sell.Status, sell.Reason)

	updates = e.ReconcileOrders(ctx)
	require.Len(t, updates, 1)
	assert.InDelta(t, 100969.0, updates[0].RiskSnapshot.Cash, 1e-6)
	assert.Len(t, e.Risk().DailyTrades(), 2)

	positions, err := p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	assert.Len(t, journal.executions, 2)
	require.Len(t, journal.updates, 2)
	assert.Equal(t, "filled", journal.updates[1].Status)
	assert.InDelta(t, 100969.0, journal.updates[1].Cash, 1e-6)
}

func TestEngine_RiskRejection(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, map[string]float64{"AAPL": 150})
	journal := &memJournal{}
	e := newEngine(t, p, risk.DefaultLimits(), journal)

	res := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "AAPL", Strategy: "manual", Action: "buy", Quantity: 100})
	assert.Equal(t, StatusRejected, res.Status)
	assert.Empty(t, res.OrderID)
	require.NotNil(t, res.Risk)
	assert.Equal(t, risk.CheckTradeSize, res.Risk.Check)

	var riskErr *errors.RiskError
	assert.True(t, errors.As(res.Err, &riskErr))

	assert.Empty(t, e.Executor().PendingOrders())
	assert.Empty(t, p.History(), "nothing reaches the broker")
	require.Len(t, journal.executions, 1)
	assert.Equal(t, "trade_size", journal.executions[0].RiskCheck)
}

func TestEngine_NoSignal(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, map[string]float64{"AAPL": 150})
	e := newEngine(t, p, relaxedLimits(), nil)

	for _, action := range []string{"hold", "", "short"} {
		res := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "AAPL", Action: action})
		assert.Equal(t, StatusNoSignal, res.Status, action)
		assert.Nil(t, res.Risk)
	}
	assert.Empty(t, e.Generator().Recent(-1))

	e.minConfidence = 0.5
	res := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "AAPL", Action: "buy", Confidence: 0.2})
	assert.Equal(t, StatusNoSignal, res.Status)
	assert.Equal(t, "confidence below minimum", res.Reason)
}

func TestEngine_SubmissionFailure(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, map[string]float64{"AAPL": 150})
	e := newEngine(t, p, relaxedLimits(), nil)
	require.NoError(t, p.Disconnect(ctx))

	res := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "AAPL", Action: "buy", Quantity: 10})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, execution.FailureNotConnected, res.Failure)
	assert.ErrorIs(t, res.Err, errors.ErrNotConnected)
	assert.Len(t, e.Executor().FailedOrders(), 1)
	assert.Empty(t, e.ReconcileOrders(ctx))
}

func TestEngine_NoQuoteIsRejectedByRisk(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, nil)
	e := newEngine(t, p, relaxedLimits(), nil)

	res := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "NOPE", Action: "buy", Quantity: 1})
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, risk.CheckPrice, res.Risk.Check)
}

func TestEngine_ReconcileHeldOrders(t *testing.T) {
	ctx := context.Background()
	b := newHeldBroker()
	b.prices["AAPL"] = 10
	b.prices["MSFT"] = 10
	e := newEngine(t, b, risk.DefaultLimits(), nil)

	first := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "AAPL", Action: "buy", Quantity: 5})
	second := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "MSFT", Action: "buy", Quantity: 5})
	require.Equal(t, StatusExecuted, first.Status)
	require.Equal(t, StatusExecuted, second.Status)

	assert.Empty(t, e.ReconcileOrders(ctx), "still working at the broker")

	b.fill(second.OrderID, 10.5)
	updates := e.ReconcileOrders(ctx)
	require.Len(t, updates, 1)
	assert.Equal(t, second.OrderID, updates[0].OrderID)
	assert.Equal(t, 10.5, updates[0].Order.FilledPrice)

	b.fill(first.OrderID, 9.5)
	updates = e.ReconcileOrders(ctx)
	require.Len(t, updates, 1)
	assert.Equal(t, first.OrderID, updates[0].OrderID)
	assert.Empty(t, e.Executor().PendingOrders())
	assert.Len(t, e.Risk().DailyTrades(), 2)
}

func TestEngine_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, map[string]float64{"AAPL": 100, "MSFT": 100, "TCS": 100})
	e := newEngine(t, p, risk.DefaultLimits(), nil)

	results := map[string]map[string]models.RawSignal{
		"AAPL": {"momentum": {Signal: 1, Confidence: 0.7}},
		"MSFT": {"momentum": {Signal: 1, Confidence: 0.9}, "mean_rev": {Signal: 0}},
		"TCS":  {"momentum": {Signal: 1, Confidence: 0.8}},
	}

	out := e.ProcessBatch(ctx, []string{"AAPL", "MSFT", "TCS"}, results, 40, models.OrderTypeMarket)
	require.Len(t, out, 3)
	assert.Equal(t, "MSFT", out[0].Symbol, "highest confidence first")
	for _, r := range out {
		assert.Equal(t, StatusExecuted, r.Status, r.Reason)
	}

	// 60 shares is 6% of equity.
	out = e.ProcessBatch(ctx, []string{"AAPL"}, results, 60, "")
	require.Len(t, out, 1)
	assert.Equal(t, StatusRejected, out[0].Status)

	assert.Len(t, e.ReconcileOrders(ctx), 3)
}

func TestEngine_WithSQLiteJournalAndMetrics(t *testing.T) {
	ctx := context.Background()
	j, err := store.NewSQLiteJournal(filepath.Join(t.TempDir(), "trader.db"))
	require.NoError(t, err)
	defer j.Close()

	p := newPaper(t, map[string]float64{"AAPL": 150})
	e, err := NewEngine(ctx, EngineConfig{
		Broker:  p,
		Limits:  relaxedLimits(),
		Journal: j,
		Metrics: metrics.New(),
	})
	require.NoError(t, err)

	res := e.ProcessRealtimeSignal(ctx, RealtimeRequest{Symbol: "AAPL", Strategy: "manual", Action: "buy"})
	require.Equal(t, StatusExecuted, res.Status, res.Reason)
	assert.Equal(t, 100, res.Order.Quantity, "default quantity")
	require.Len(t, e.ReconcileOrders(ctx), 1)

	updates, err := j.OrderUpdates(ctx, store.UpdateFilter{OrderID: res.OrderID})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.InDelta(t, 84985.0, updates[0].Cash, 1e-6)

	executions, err := j.Executions(ctx, store.ExecutionFilter{Status: "executed"})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, res.OrderID, executions[0].OrderID)
}

func TestNewEngine_Errors(t *testing.T) {
	_, err := NewEngine(context.Background(), EngineConfig{})
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}
