package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StableVault.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	Sequence    prometheus.Gauge

	// --- Risk ---
	LiquidationsCompleted *prometheus.CounterVec
	CollateralSeized      *prometheus.CounterVec
	HealthFactorChecks    prometheus.Counter
	OracleStale           *prometheus.CounterVec

	// --- Solvency audit ---
	TotalDebt            prometheus.Gauge
	TotalCollateralValue prometheus.Gauge
	SolvencyViolations   prometheus.Counter

	// --- Outbound publishing ---
	EventsPublished prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- Persistence ---
	PersistRowsWritten prometheus.Counter
	PersistBatchSize   prometheus.Histogram
	PersistBatchDur    prometheus.Histogram
	PersistErrors      *prometheus.CounterVec
	PersistLastSeq     prometheus.Gauge

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_applied_total",
			Help: "Mutating operations committed",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_rejected_total",
			Help: "Mutating operations rejected (validation, health factor, external failure)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_op_duration_seconds",
			Help:    "End-to-end duration of a mutating operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_sequence",
			Help: "Current global operation sequence number",
		}),

		LiquidationsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_liquidations_completed_total",
			Help: "Successful liquidations",
		}, []string{"asset"}),

		CollateralSeized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_collateral_seized_units",
			Help: "Collateral seized by liquidators (whole units, truncated)",
		}, []string{"asset"}),

		HealthFactorChecks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_health_factor_checks_total",
			Help: "Health factor evaluations",
		}),

		OracleStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_oracle_stale_total",
			Help: "Operations rejected on a stale price quote",
		}, []string{"asset"}),

		TotalDebt: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_total_debt_units",
			Help: "Outstanding stable-token debt (whole units, truncated)",
		}),

		TotalCollateralValue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_total_collateral_value_units",
			Help: "Value of all posted collateral (whole units of account, truncated)",
		}),

		SolvencyViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_solvency_violations_total",
			Help: "Solvency audits that found debt exceeding collateral value",
		}),

		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_events_published_total",
			Help: "Notifications published to the outbound stream",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Notifications dropped due to a full publish channel",
		}),

		PersistRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_rows_written_total",
			Help: "Operation journal rows written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Rows per journal batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Last persisted operation sequence",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"endpoint", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_http_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
