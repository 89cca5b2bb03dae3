package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics.go - Prometheus метрики торгового ядра

var (
	metricGateEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "gate",
		Name:      "evaluations_total",
		Help:      "Admission gate evaluations by pair and outcome",
	}, []string{"pair", "outcome"})

	metricGateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "gate",
		Name:      "rejections_total",
		Help:      "Admission gate rejections by failed condition",
	}, []string{"pair", "condition"})

	metricHedgesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "hedges_opened_total",
		Help:      "Hedges successfully opened",
	}, []string{"pair"})

	metricHedgesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "hedges_closed_total",
		Help:      "Hedges closed by pair and result",
	}, []string{"pair", "result"})

	metricHedgesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "hedges_failed_total",
		Help:      "Hedges that failed during opening and were unwound",
	}, []string{"pair"})

	metricUnwindRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "unwind_retries_total",
		Help:      "Retry attempts while unwinding partially opened hedges",
	})

	metricUnwindFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "unwind_failures_total",
		Help:      "Unwind operations that exhausted retries and locked an account",
	})

	metricActiveHedges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "active_hedges",
		Help:      "Hedges currently in OPENING, OPEN or CLOSING state",
	}, []string{"pair"})

	metricLockedAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hedger",
		Subsystem: "accounts",
		Name:      "locked_total",
		Help:      "Accounts locked pending manual intervention",
	})

	metricRiskEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "risk",
		Name:      "events_total",
		Help:      "Risk events by level and action",
	}, []string{"level", "action"})

	metricRealizedPnl = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "realized_pnl_usd",
		Help:      "Cumulative absolute realized PnL by pair and sign",
	}, []string{"pair", "sign"})

	metricLegFillLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hedger",
		Subsystem: "trading",
		Name:      "leg_fill_seconds",
		Help:      "Time from order placement to fill confirmation",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	metricTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "tick_seconds",
		Help:      "Duration of a full monitoring tick over all pairs",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// observeRealizedPnl раскладывает PNL по знаку для счётчиков
func observeRealizedPnl(pair string, pnl float64) {
	if pnl >= 0 {
		metricRealizedPnl.WithLabelValues(pair, "profit").Add(pnl)
	} else {
		metricRealizedPnl.WithLabelValues(pair, "loss").Add(-pnl)
	}
}
