package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement core and its
// supporting workers.
type Metrics struct {
	// --- Core processing ---
	InstructionsApplied  *prometheus.CounterVec
	InstructionsRejected *prometheus.CounterVec
	InstructionDuration  *prometheus.HistogramVec
	CoreSequence         prometheus.Gauge
	StateHashDuration    prometheus.Histogram

	// --- Matching ---
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionVolume   *prometheus.CounterVec
	OrdersResting     *prometheus.GaugeVec
	OrdersCancelled   *prometheus.CounterVec
	SelfTradesSkipped *prometheus.CounterVec

	// --- Channels & backpressure ---
	ProjectionDrops     prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec

	// --- Ingestion ---
	IngestMessages    *prometheus.CounterVec
	IngestParseErrors *prometheus.CounterVec

	// --- Persistence ---
	PersistExecutionsWritten prometheus.Counter
	PersistBatchSize         prometheus.Histogram
	PersistErrors            *prometheus.CounterVec
	PersistLastSequence      prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		InstructionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_core_instructions_applied_total",
			Help: "Instructions successfully applied by the settlement core",
		}, []string{"instruction_type"}),

		InstructionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_core_instructions_rejected_total",
			Help: "Instructions rejected (dedup, validation, overflow)",
		}, []string{"instruction_type", "reason"}),

		InstructionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cledger_core_instruction_apply_duration_seconds",
			Help:    "Time to apply a single instruction",
			Buckets: latencyBuckets,
		}, []string{"instruction_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cledger_core_sequence",
			Help: "Current global settlement sequence",
		}),

		StateHashDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cledger_core_state_hash_duration_seconds",
			Help:    "Time to compute the state hash",
			Buckets: latencyBuckets,
		}),

		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_executions_total",
			Help: "Matched executions by contract",
		}, []string{"contract_id"}),

		ExecutionVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_execution_volume_total",
			Help: "Contract units traded by contract",
		}, []string{"contract_id"}),

		OrdersResting: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cledger_orders_resting",
			Help: "Resting orders by contract and side",
		}, []string{"contract_id", "side"}),

		OrdersCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_orders_cancelled_total",
			Help: "Cancelled orders by cancel kind",
		}, []string{"kind"}),

		SelfTradesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_self_trades_skipped_total",
			Help: "Resting orders skipped because both sides share an address",
		}, []string{"contract_id"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cledger_projection_drops_total",
			Help: "Outputs dropped on the non-blocking projection channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cledger_persist_backpressure_total",
			Help: "Blocking sends that stalled on the persistence channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_idempotency_duplicates_total",
			Help: "Duplicate instructions detected",
		}, []string{"instruction_type", "tier"}),

		IngestMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_ingest_messages_total",
			Help: "Messages consumed from the instruction stream",
		}, []string{"subject"}),

		IngestParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_ingest_parse_errors_total",
			Help: "Messages rejected by the instruction parser",
		}, []string{"subject"}),

		PersistExecutionsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cledger_persist_executions_written_total",
			Help: "Executions written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cledger_persist_batch_size",
			Help:    "Executions per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cledger_persist_errors_total",
			Help: "Persistence failures by operation",
		}, []string{"operation"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cledger_persist_last_sequence",
			Help: "Highest sequence durably written",
		}),
	}
}
