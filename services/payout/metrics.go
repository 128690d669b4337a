package payout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transferTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_transfers_total",
		Help: "Per-app payout decisions, by status.",
	}, []string{"status"})

	cycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_cycles_total",
		Help: "Payout cycles finished, by status.",
	}, []string{"status"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payout_cycle_duration_seconds",
		Help:    "Wall time of a payout cycle.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	reserveGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payout_reserve_dollars",
		Help: "Dollar value of KIN held in reserve after the last priced cycle.",
	})
)
