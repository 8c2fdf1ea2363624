package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ingests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mediaworker_pool_ingests_total",
	Help: "Pool ingestions by outcome (stored or deduplicated).",
}, []string{"outcome"})
