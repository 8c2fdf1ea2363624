package ytdlp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	childStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaworker_child_starts_total",
		Help: "Extractor child processes launched.",
	})
	childExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaworker_child_exits_total",
		Help: "Extractor child exits by outcome.",
	}, []string{"outcome"}) // ok | error | timeout
)
