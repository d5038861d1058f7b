package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
)

// unknownSparsifierLabel replaces names outside the registry so that request
// input cannot grow the label set
const unknownSparsifierLabel = "unknown"

var (
	// runsTotal counts experiment runs by sparsifier and result
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sparsify_experiment_runs_total",
		Help: "Total experiment runs by sparsifier and result",
	}, []string{"sparsifier", "result"})

	// trainDuration tracks the timed training loop only
	trainDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sparsify_train_duration_seconds",
		Help:    "Training loop duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"sparsifier"})

	// edgeKeepRatio tracks realised edges after / edges before
	edgeKeepRatio = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sparsify_edge_keep_ratio",
		Help:    "Fraction of edges kept by the sparsifier",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	}, []string{"sparsifier"})
)

// sparsifierLabel returns name when it is a registered strategy
func sparsifierLabel(name string) string {
	if _, err := sparsify.Lookup(name); err != nil {
		return unknownSparsifierLabel
	}
	return name
}
