// Package metrics defines the Prometheus registry shared across the
// pipeline (SPEC_FULL.md A3). Each component is handed the same
// *Registry at construction so scan lag, correlation drops, poll
// retries, and dispatch outcomes land on one /metrics surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups the counters and gauges the relayer pipeline updates.
type Registry struct {
	Registerer prometheus.Registerer

	ScanLagBlocks       *prometheus.GaugeVec
	CorrelationMissing  prometheus.Counter
	UnknownDestination  prometheus.Counter
	AttestationRetries  prometheus.Counter
	PollRetriesExhausted prometheus.Counter
	DispatchSuccess     prometheus.Counter
	DispatchDuplicate   prometheus.Counter
	DispatchFailed      prometheus.Counter
	PendingGauge        prometheus.Gauge
}

// New registers all metrics against reg and returns the bound Registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Registerer: reg,
		ScanLagBlocks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relayer",
			Name:      "scan_lag_blocks",
			Help:      "head_block - last_processed_block, per source chain.",
		}, []string{"chain"}),
		CorrelationMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "correlation_missing_total",
			Help:      "Initiation events dropped for lacking a matching MessageSent log.",
		}),
		UnknownDestination: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "unknown_destination_total",
			Help:      "Initiation events dropped for an unresolvable destination_domain.",
		}),
		AttestationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "attestation_retries_total",
			Help:      "Attestation poll attempts that did not return a complete attestation.",
		}),
		PollRetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "poll_retries_exhausted_total",
			Help:      "Pending transfers given up on after max_poll_retries.",
		}),
		DispatchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "dispatch_success_total",
			Help:      "receive_message calls confirmed delivered.",
		}),
		DispatchDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "dispatch_duplicate_total",
			Help:      "receive_message calls that reverted because another relayer already delivered.",
		}),
		DispatchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "dispatch_failed_total",
			Help:      "receive_message calls that reverted or timed out for a non-duplicate reason.",
		}),
		PendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relayer",
			Name:      "pending_transfers",
			Help:      "Current size of the pending-transfer store.",
		}),
	}

	reg.MustRegister(
		r.ScanLagBlocks,
		r.CorrelationMissing,
		r.UnknownDestination,
		r.AttestationRetries,
		r.PollRetriesExhausted,
		r.DispatchSuccess,
		r.DispatchDuplicate,
		r.DispatchFailed,
		r.PendingGauge,
	)
	return r
}
