package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	SwapsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_swaps_created_total",
		Help: "The total number of swaps accepted into the ledger",
	}, []string{"domain", "direction"})

	SwapsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_swaps_settled_total",
		Help: "The total number of swaps that reached a terminal state",
	}, []string{"domain", "state"})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_state_transitions_total",
		Help: "Ledger transitions by target state",
	}, []string{"new_state"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coordinator_step_duration_seconds",
		Help:    "Time taken to execute a saga step",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // Start at 100ms with 12 buckets doubling in size
	}, []string{"step"})

	AttestationPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_attestation_polls_total",
		Help: "Number of attestation service poll attempts",
	})

	AttestationWaitTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coordinator_attestation_wait_seconds",
		Help:    "Time spent waiting for a transfer attestation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	})

	AttestationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_attestation_timeouts_total",
		Help: "Number of attestation waits that hit the overall timeout",
	})

	PendingSwaps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_pending_swaps",
		Help: "The number of swaps queued for processing",
	})

	ActiveSwaps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coordinator_active_swaps",
		Help: "Ledger swaps by lifecycle state",
	}, []string{"state"})

	// Error tracking
	StepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_errors_total",
		Help: "Total number of step errors by type",
	}, []string{"step", "error_type"})

	PermanentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_permanent_errors_total",
		Help: "Total number of permanent errors that won't be retried",
	}, []string{"step", "error_type"})

	// Retry related metrics
	MaxRetriesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_max_retries_reached_total",
		Help: "Number of swaps that reached maximum retry attempts",
	}, []string{"error_type"})

	RetryQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_retry_queue_size",
		Help: "Current size of the retry queue",
	})

	RetriesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_retries_executed_total",
		Help: "Number of retries that were executed",
	}, []string{"error_type"})

	RetriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_retries_skipped_total",
		Help: "Number of retries that were skipped",
	}, []string{"reason"})

	DroppedRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_retries_dropped_total",
		Help: "Number of retries that were dropped due to queue capacity",
	})

	// Refund and expiry outcomes
	RefundsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_refunds_issued_total",
		Help: "The total number of refunds issued, full or net of fee",
	}, []string{"kind"})

	RefundFees = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_refund_fees_total",
		Help: "Fee units routed to the collector across all refunds",
	})

	ManualInterventions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_manual_interventions_total",
		Help: "Swaps whose refund is unsupported and needs an operator",
	})

	ExpiredSwaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_expired_swaps_total",
		Help: "Swaps forced to EXPIRED by the reconciler",
	})

	// Volume tracks input units settled per domain
	Volume = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coordinator_volume_units",
		Help: "Aggregate settled input volume by domain, in base units",
	}, []string{"domain"})
)
