package dokploy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dokploy_api_calls_total",
			Help: "Platform API calls by path and final outcome",
		},
		[]string{"path", "outcome"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dokploy_api_retries_total",
			Help: "Retried platform API attempts by path",
		},
		[]string{"path"},
	)
)
