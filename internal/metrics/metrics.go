package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autocompound_build_info",
			Help: "Build information of the auto-compounding engine",
		},
		[]string{"version", "profile"},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocompound_events_total",
			Help: "Total number of engine events by kind",
		},
		[]string{"kind"},
	)

	FeesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocompound_fees_collected_total",
			Help: "Fees credited to traders, in display units",
		},
		[]string{"pool"},
	)

	FeesCompounded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocompound_fees_compounded_total",
			Help: "Fees reinvested into positions, in display units",
		},
		[]string{"pool", "path"},
	)

	BatchesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocompound_batches_executed_total",
			Help: "Total number of executed batches",
		},
		[]string{"pool", "forced"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autocompound_batch_size",
			Help:    "Number of participants settled per batch",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	GasSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocompound_gas_saved_total",
			Help: "Gas units saved by batching compared with individual compounds",
		},
		[]string{"pool"},
	)

	ActiveParticipants = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autocompound_active_participants",
			Help: "Participants in a pool's active set",
		},
		[]string{"pool"},
	)

	ActiveStrategies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autocompound_active_strategies",
			Help: "Participants holding an active strategy",
		},
	)

	KeeperSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocompound_keeper_sweeps_total",
			Help: "Total number of keeper sweeps",
		},
		[]string{"status"},
	)

	KeeperSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autocompound_keeper_sweep_duration_seconds",
			Help:    "Duration of keeper sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
	)

	EventStoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocompound_event_store_writes_total",
			Help: "Total number of audit log writes",
		},
		[]string{"status"},
	)
)
