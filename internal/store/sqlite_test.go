package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal", "trader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSQLiteJournal_Executions(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	base := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, j.RecordExecution(ctx, ExecutionRecord{
		Timestamp: base, Symbol: "AAPL", Strategy: "manual", Action: "buy",
		Quantity: 100, Confidence: 0.9, Status: "executed", OrderID: "ORD_1",
	}))
	require.NoError(t, j.RecordExecution(ctx, ExecutionRecord{
		Timestamp: base.Add(time.Minute), Symbol: "AAPL", Strategy: "manual", Action: "buy",
		Quantity: 600, Status: "rejected", RiskCheck: "trade_size", Reason: "single trade size 9.00% exceeds 5.00%",
	}))
	require.NoError(t, j.RecordExecution(ctx, ExecutionRecord{
		Timestamp: base.Add(2 * time.Minute), Symbol: "MSFT", Action: "sell", Quantity: 5, Status: "failed", Failure: "no_quote",
	}))

	all, err := j.Executions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "MSFT", all[0].Symbol, "newest first")
	assert.Equal(t, "no_quote", all[0].Failure)

	aapl, err := j.Executions(ctx, ExecutionFilter{Symbol: "AAPL", Status: "rejected"})
	require.NoError(t, err)
	require.Len(t, aapl, 1)
	assert.Equal(t, "trade_size", aapl[0].RiskCheck)
	assert.True(t, aapl[0].Timestamp.Equal(base.Add(time.Minute)))

	recent, err := j.Executions(ctx, ExecutionFilter{Since: base.Add(30 * time.Second), Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "MSFT", recent[0].Symbol)
}

func TestSQLiteJournal_OrderUpdatesIgnoreRepeats(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	rec := OrderUpdateRecord{
		Timestamp: time.Date(2024, 5, 1, 9, 31, 0, 0, time.UTC),
		OrderID:   "ORD_1", Symbol: "AAPL", Side: "buy", Strategy: "manual", Status: "filled",
		Quantity: 100, FilledQty: 100, FilledPrice: 150,
		Equity: 99985, Cash: 84985,
	}
	require.NoError(t, j.RecordOrderUpdate(ctx, rec))
	require.NoError(t, j.RecordOrderUpdate(ctx, rec))

	updates, err := j.OrderUpdates(ctx, UpdateFilter{OrderID: "ORD_1"})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, 150.0, updates[0].FilledPrice)
	assert.Equal(t, 84985.0, updates[0].Cash)
}

// Property: the journal holds one row per distinct (order, status) pair,
// however often each is recorded.
func TestProperty_OrderUpdatesDeduplicated(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	run := 0

	properties.Property("rows == distinct pairs", prop.ForAll(
		func(orderIdx []int, statusIdx []int) bool {
			run++
			symbol := fmt.Sprintf("SYM%d", run)
			statuses := []string{"filled", "cancelled", "rejected"}

			distinct := map[string]bool{}
			for i, o := range orderIdx {
				status := statuses[statusIdx[i%len(statusIdx)]%len(statuses)]
				id := fmt.Sprintf("%s_%d", symbol, o)
				distinct[id+"/"+status] = true
				if err := j.RecordOrderUpdate(ctx, OrderUpdateRecord{
					Timestamp: time.Now(), OrderID: id, Symbol: symbol, Side: "buy", Status: status,
				}); err != nil {
					return false
				}
			}

			rows, err := j.OrderUpdates(ctx, UpdateFilter{Symbol: symbol})
			return err == nil && len(rows) == len(distinct)
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOfN(3, gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
