package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.RecordSignal("manual", "buy", "executed")
	r.RecordSignal("manual", "buy", "executed")
	r.RecordRiskRejection("trade_size")
	r.RecordOrder("paper", "buy")
	r.RecordFailure("paper", "no_quote")
	r.RecordReconciled("filled")
	r.SetPending(3)
	r.RecordAccount(99985, 84985, 0.01, -15)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signals.WithLabelValues("manual", "buy", "executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.riskRejects.WithLabelValues("trade_size")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("paper", "no_quote")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.pending))
	assert.Equal(t, 84985.0, testutil.ToFloat64(r.cash))
	assert.Equal(t, -15.0, testutil.ToFloat64(r.dailyPnL))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordSignal("s", "buy", "executed")
		r.RecordAccount(1, 1, 0, 0)
		r.ObserveDuration("reconcile", time.Now())
	})
	assert.NotNil(t, r.Handler())
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.RecordLastPrice("AAPL", 150)
	r.ObserveDuration("reconcile", time.Now().Add(-time.Millisecond))

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `trader_last_price{symbol="AAPL"} 150`)
	assert.Contains(t, string(body), "trader_operation_duration_seconds_count")
}
