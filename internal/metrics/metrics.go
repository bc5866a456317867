// Package metrics exposes Prometheus instrumentation for the trading loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APICalls counts broker calls that were actually sent, by endpoint.
	APICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "levelbot",
		Name:      "api_calls_total",
		Help:      "Broker API calls admitted by the rate budget.",
	}, []string{"endpoint"})

	// APIDeferrals counts calls the rate budget made wait.
	APIDeferrals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "levelbot",
		Name:      "api_deferrals_total",
		Help:      "Broker calls deferred because the call budget was exhausted.",
	})

	// APIFailures counts failed broker calls by classification.
	APIFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "levelbot",
		Name:      "api_failures_total",
		Help:      "Broker call failures by kind (rejected or transient).",
	}, []string{"kind"})

	// BudgetUsage is the fraction of the rolling call window in use.
	BudgetUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "levelbot",
		Name:      "budget_usage_ratio",
		Help:      "Calls in the rolling window divided by the ceiling.",
	})

	// Signals counts detected signals by pattern.
	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "levelbot",
		Name:      "signals_total",
		Help:      "Signals emitted by the detector, by pattern.",
	}, []string{"pattern"})

	// Trades counts closed positions by exit reason.
	Trades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "levelbot",
		Name:      "trades_closed_total",
		Help:      "Positions closed, by exit reason.",
	}, []string{"reason"})
)
