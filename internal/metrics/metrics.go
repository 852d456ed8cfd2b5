// Package metrics holds the Prometheus collectors shared by the ledger
// components. They register on the default registry and are served by the
// API's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal counts recorded recommendations by outcome
	// (inserted, skipped, failed).
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickledger_records_total",
			Help: "Recommendations processed by the recorder, by outcome",
		},
		[]string{"outcome"},
	)

	// QuoteFetches counts quote requests by source and result.
	QuoteFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickledger_quote_fetches_total",
			Help: "Quote requests issued during price refresh, by source and result",
		},
		[]string{"source", "result"},
	)

	// RefreshDuration observes how long a refresh cycle takes.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pickledger_refresh_duration_seconds",
			Help:    "Duration of a full price refresh cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// RefreshSkipped counts cycles skipped because one was already running.
	RefreshSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pickledger_refresh_skipped_total",
			Help: "Refresh cycles skipped because another cycle was in flight",
		},
	)

	// PositionsClosed counts close transitions by reason.
	PositionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickledger_positions_closed_total",
			Help: "Entries moved to closed, by close reason",
		},
		[]string{"reason"},
	)

	// OpenSymbols is the number of distinct symbols seen open at the last refresh.
	OpenSymbols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pickledger_open_symbols",
			Help: "Distinct symbols with open entries at the last refresh",
		},
	)
)
