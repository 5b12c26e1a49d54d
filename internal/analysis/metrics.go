package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_provider_calls_total",
			Help: "Total AI provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	providerCostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_provider_cost_total",
			Help: "Total cost charged for successful AI provider calls",
		},
	)
	fallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_provider_fallbacks_total",
			Help: "Times the orchestrator fell through to a lower-priority provider",
		},
	)
	costLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_cost_limited_total",
			Help: "Annotation attempts blocked by the cost ceiling",
		},
	)
)
