package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by kind and final state
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_jobs_total",
			Help: "Total number of finished jobs",
		},
		[]string{"kind", "state"},
	)

	// JobDuration tracks handler execution time
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contract_jobs_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// JobsEnqueued counts accepted jobs by kind
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_jobs_enqueued_total",
			Help: "Total number of enqueued jobs",
		},
		[]string{"kind"},
	)

	// TransactionsSent counts transactions broadcast to each network
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_jobs_transactions_sent_total",
			Help: "Total number of transactions sent",
		},
		[]string{"network", "kind", "status"},
	)

	// PendingTransactions tracks transactions awaiting a receipt
	PendingTransactions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contract_jobs_pending_transactions",
			Help: "Number of pending transactions seen by the last reconciliation pass",
		},
		[]string{"network"},
	)

	// ReconcileOutcomes counts reconciliation results per transaction
	ReconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_jobs_reconcile_outcomes_total",
			Help: "Total number of reconciliation outcomes",
		},
		[]string{"outcome"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_jobs_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// GasUsed tracks gas used by settled transactions
	GasUsed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contract_jobs_gas_used",
			Help:    "Gas used by settled transactions",
			Buckets: []float64{21000, 50000, 100000, 200000, 500000, 1000000, 3000000},
		},
		[]string{"kind"},
	)
)
