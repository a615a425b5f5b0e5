package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_trades_opened_total",
			Help: "Total number of paper positions opened (by profile).",
		},
		[]string{"profile"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_trades_closed_total",
			Help: "Total number of paper positions closed (by profile and reason).",
		},
		[]string{"profile", "reason"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "papertrader_positions_open",
			Help: "Current number of open positions per profile.",
		},
		[]string{"profile"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papertrader_equity",
			Help: "Current equity of the paper portfolio.",
		},
	)

	FeesPaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_fees_total",
			Help: "Cumulative fees charged by the paper ledger.",
		},
		[]string{"profile"},
	)

	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_signal_evaluations_total",
			Help: "Strategy evaluations by profile and outcome (signal | none).",
		},
		[]string{"profile", "outcome"},
	)

	FeedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_feed_errors_total",
			Help: "Candle fetches that failed after all retries.",
		},
		[]string{"symbol"},
	)

	Pauses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papertrader_pauses_total",
			Help: "Number of times the risk brake paused new entries.",
		},
	)

	Paused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papertrader_paused",
			Help: "1 while new entries are paused by the risk brake.",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "papertrader_tick_duration_seconds",
			Help:    "Wall time spent processing one control-loop tick.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		TradesOpened, TradesClosed, PositionsOpen, EquityGauge, FeesPaid,
		Evaluations, FeedErrors, Pauses, Paused, TickDuration,
	)
}
