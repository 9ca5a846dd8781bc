// Package obs exposes the engine's Prometheus metrics:
//   - engine_events_total{kind}          – events accepted by the bus
//   - engine_queue_drops_total           – events dropped on a full queue
//   - engine_orders_total{mode,side}     – orders routed to a broker
//   - engine_rejections_total{gate}      – signals rejected per risk gate
//   - engine_exit_reasons_total{reason}  – monitor-driven exits by reason
//   - engine_equity_usd                  – last observed equity snapshot
//   - engine_trading_mode                – 0=NORMAL 1=RECOVERY 2=EMERGENCY_STOP
//
// Registered in init() and served by the HTTP handler started in
// cmd/trader at /metrics.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"main/internal/model/enum"
)

var (
	mtxEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_events_total",
			Help: "Events accepted by the bus",
		},
		[]string{"kind"},
	)

	mtxQueueDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_queue_drops_total",
			Help: "Events dropped because the queue was full",
		},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders routed to a broker",
		},
		[]string{"mode", "side"},
	)

	mtxRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rejections_total",
			Help: "Signals rejected, split by risk gate",
		},
		[]string{"gate"},
	)

	mtxExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exit_reasons_total",
			Help: "Monitor-driven exits by reason",
		},
		[]string{"reason"},
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_equity_usd",
			Help: "Equity in USD",
		},
	)

	mtxTradingMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_trading_mode",
			Help: "Trading mode (0=NORMAL 1=RECOVERY 2=EMERGENCY_STOP)",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxEvents, mtxQueueDrops)
	prometheus.MustRegister(mtxOrders, mtxRejections, mtxExitReasons)
	prometheus.MustRegister(mtxEquity, mtxTradingMode)
}

func ObserveEvent(kind enum.EventKind) { mtxEvents.WithLabelValues(kind.String()).Inc() }
func IncQueueDrop() { mtxQueueDrops.Inc() }
func IncOrder(mode, side string) { mtxOrders.WithLabelValues(mode, side).Inc() }
func IncRejection(gate string) { mtxRejections.WithLabelValues(gate).Inc() }
func IncExitReason(reason string) { mtxExitReasons.WithLabelValues(reason).Inc() }
func SetEquity(v float64) { mtxEquity.Set(v) }
func SetTradingMode(m enum.TradingMode) { mtxTradingMode.Set(float64(m)) }

// Handler serves the Prometheus text exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
