// Package metrics declares the Prometheus collectors this service exposes
// at /metrics. Grounded on wisbric-nightowl's internal/telemetry/metrics.go
// shape: package-level collectors with a shared Namespace, plus an All()
// slice the composition root registers in one call rather than scattering
// prometheus.MustRegister across every package that wants a counter.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "flowctl"

var CacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache lookups that found a value.",
	},
	[]string{"backend"},
)

var CacheMissesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache lookups that found nothing.",
	},
	[]string{"backend"},
)

var OAuthTokenRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oauth",
		Name:      "token_refresh_total",
		Help:      "Total number of OAuth token refresh attempts by outcome.",
	},
	[]string{"provider", "outcome"},
)

var BillingDebitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "debits_total",
		Help:      "Total number of usage debits applied by outcome.",
	},
	[]string{"outcome"},
)

var ChainRunDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chainexecutor",
		Name:      "run_duration_seconds",
		Help:      "Time to run a chain to completion or failure.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"status"},
)

var PromptAgentTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "promptagent",
		Name:      "tokens_total",
		Help:      "Total number of tokens consumed by prompt turns.",
	},
	[]string{"kind"},
)

// All returns every collector this service defines, for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		CacheHitsTotal,
		CacheMissesTotal,
		OAuthTokenRefreshTotal,
		BillingDebitsTotal,
		ChainRunDuration,
		PromptAgentTokensTotal,
	}
}
