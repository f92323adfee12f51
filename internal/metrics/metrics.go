// Package metrics exposes Prometheus counters for the forwarding pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// ListingsIngested counts ingest results by outcome (created, appended, duplicate, rejected).
	ListingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_listings_ingested_total",
			Help: "Submission events processed by the media aggregator, by outcome",
		},
		[]string{"outcome"},
	)

	// DeliveriesTotal counts per-target delivery attempts.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Per-target delivery attempts, by result",
		},
		[]string{"result"},
	)

	// ForwardsTotal counts listings forwarded by the scheduler (boost replays excluded).
	ForwardsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_forwards_total",
		Help: "Listings forwarded by the scheduler",
	})

	// BoostReplaysTotal counts boost replay rounds.
	BoostReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_boost_replays_total",
		Help: "Boost replay rounds injected into the forwarding cadence",
	})

	// RecycledTotal counts listings moved back to active by queue recycling.
	RecycledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_recycled_listings_total",
		Help: "Listings returned to the active pool by recycling",
	})

	// PassErrorsTotal counts scheduler passes aborted by an error or panic.
	PassErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_scheduler_pass_errors_total",
		Help: "Scheduler passes that ended with an error",
	})

	// SendingEnabled reports the sending flag (1 = on).
	SendingEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sending_enabled",
		Help: "Whether the scheduler is allowed to send (1) or paused (0)",
	})
)
