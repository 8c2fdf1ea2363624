package repair

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	symlinksRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaworker_repair_symlinks_repaired_total",
		Help: "Broken user symlinks re-pointed at their pool files.",
	})
	symlinksRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaworker_repair_symlinks_removed_total",
		Help: "Broken user symlinks removed because no pool file was found.",
	})
	corruptionHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaworker_repair_corruption_hits_total",
		Help: "Pool entries whose size no longer matches their sidecar.",
	})
)
