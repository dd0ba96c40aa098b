package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []OrderStatus{StatusPending, StatusPartialFilled, StatusFilled, StatusCancelled, StatusRejected}

func genStatus() gopter.Gen {
	return gen.IntRange(0, len(allStatuses)-1).Map(func(i int) OrderStatus { return allStatuses[i] })
}

func TestProperty_TerminalStatesAreAbsorbing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a terminal order never changes status", prop.ForAll(
		func(from, next OrderStatus) bool {
			o := Order{ID: "o", Status: from}
			err := o.Transition(next)

			switch {
			case from == next:
				return err == nil && o.Status == from
			case from.IsTerminal():
				return err != nil && o.Status == from
			default:
				return err == nil && o.Status == next
			}
		},
		genStatus(),
		genStatus(),
	))

	properties.TestingRun(t)
}

func TestOrder_Fill(t *testing.T) {
	o := Order{ID: "o", Quantity: 10, Status: StatusPending}
	require.NoError(t, o.Fill(150))
	assert.Equal(t, StatusFilled, o.Status)
	assert.Equal(t, 10, o.FilledQty)
	assert.Equal(t, 150.0, o.FilledPrice)

	cancelled := Order{ID: "c", Quantity: 10, Status: StatusCancelled}
	assert.Error(t, cancelled.Fill(150))
	assert.Zero(t, cancelled.FilledQty)
}

func TestParseOrderSide(t *testing.T) {
	for _, in := range []string{"buy", "BUY", " Buy "} {
		assert.Equal(t, OrderSideBuy, ParseOrderSide(in), in)
	}
	for _, in := range []string{"sell", "SELL", "hold", ""} {
		assert.Equal(t, OrderSideSell, ParseOrderSide(in), in)
	}

	assert.Equal(t, OrderTypeLimit, ParseOrderType(" LIMIT "))
	assert.Equal(t, OrderTypeStopLimit, ParseOrderType("stop_limit"))
	assert.Equal(t, OrderTypeMarket, ParseOrderType("iceberg"))
}
