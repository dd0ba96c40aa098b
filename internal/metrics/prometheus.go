// Package metrics exports trading activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records signal, order and account metrics. A nil *Recorder
// records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	signals     *prometheus.CounterVec
	riskRejects *prometheus.CounterVec
	orders      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	reconciled  *prometheus.CounterVec
	pending     prometheus.Gauge
	equity      prometheus.Gauge
	cash        prometheus.Gauge
	drawdown    prometheus.Gauge
	dailyPnL    prometheus.Gauge
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on a fresh registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_signals_total",
				Help: "Signals processed, by outcome",
			},
			[]string{"strategy", "action", "status"},
		),
		riskRejects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_risk_rejections_total",
				Help: "Signals refused by a risk check",
			},
			[]string{"check"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_orders_submitted_total",
				Help: "Orders accepted by the broker",
			},
			[]string{"broker", "side"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_order_failures_total",
				Help: "Order submissions that failed",
			},
			[]string{"broker", "kind"},
		),
		reconciled: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_orders_reconciled_total",
				Help: "Orders observed reaching a terminal status",
			},
			[]string{"status"},
		),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "trader_pending_orders",
			Help: "Orders awaiting a terminal status",
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Name: "trader_account_equity",
			Help: "Account equity at the last snapshot",
		}),
		cash: f.NewGauge(prometheus.GaugeOpts{
			Name: "trader_account_cash",
			Help: "Account cash at the last snapshot",
		}),
		drawdown: f.NewGauge(prometheus.GaugeOpts{
			Name: "trader_drawdown_ratio",
			Help: "Drawdown from peak equity",
		}),
		dailyPnL: f.NewGauge(prometheus.GaugeOpts{
			Name: "trader_daily_pnl",
			Help: "Equity change since the day opened",
		}),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trader_last_price",
				Help: "Last price seen for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trader_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Handler serves the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordSignal counts one processed signal.
func (r *Recorder) RecordSignal(strategy, action, status string) {
	if r == nil {
		return
	}
	r.signals.WithLabelValues(strategy, action, status).Inc()
}

// RecordRiskRejection counts a signal refused by check.
func (r *Recorder) RecordRiskRejection(check string) {
	if r == nil {
		return
	}
	r.riskRejects.WithLabelValues(check).Inc()
}

// RecordOrder counts an accepted order.
func (r *Recorder) RecordOrder(broker, side string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(broker, side).Inc()
}

// RecordFailure counts a failed submission.
func (r *Recorder) RecordFailure(broker, kind string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(broker, kind).Inc()
}

// RecordReconciled counts an order that reached status.
func (r *Recorder) RecordReconciled(status string) {
	if r == nil {
		return
	}
	r.reconciled.WithLabelValues(status).Inc()
}

// SetPending sets the pending order gauge.
func (r *Recorder) SetPending(n int) {
	if r == nil {
		return
	}
	r.pending.Set(float64(n))
}

// RecordAccount sets the account gauges.
func (r *Recorder) RecordAccount(equity, cash, drawdown, dailyPnL float64) {
	if r == nil {
		return
	}
	r.equity.Set(equity)
	r.cash.Set(cash)
	r.drawdown.Set(drawdown)
	r.dailyPnL.Set(dailyPnL)
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	if r == nil {
		return
	}
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// ObserveDuration records the time elapsed since start for op.
func (r *Recorder) ObserveDuration(op string, start time.Time) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
