package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexChunks is the chunk count of the most recently opened index.
	IndexChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bellaqa",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Number of chunks in the loaded index",
		},
	)

	// IndexInfo is 1 for the loaded index's build id and embedding model.
	// Labels: build_id, embedding_model
	IndexInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bellaqa",
			Subsystem: "index",
			Name:      "info",
			Help:      "Loaded index build id and embedding model (value is always 1)",
		},
		[]string{"build_id", "embedding_model"},
	)

	// IndexReloadsTotal counts hot reload attempts.
	// Labels: result (success, error)
	IndexReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellaqa",
			Subsystem: "index",
			Name:      "reloads_total",
			Help:      "Total number of index hot reload attempts",
		},
		[]string{"result"},
	)

	// BuildsTotal counts index builds.
	// Labels: result (success, error)
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellaqa",
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Total number of index builds",
		},
		[]string{"result"},
	)

	// QueryDuration tracks similarity search latency.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bellaqa",
			Subsystem: "index",
			Name:      "query_duration_seconds",
			Help:      "Duration of index similarity queries in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)
)

// recordIndexLoaded updates the index gauges for a freshly opened index.
func recordIndexLoaded(ix *Index) {
	IndexChunks.Set(float64(ix.manifest.ChunkCount))
	IndexInfo.Reset()
	IndexInfo.WithLabelValues(ix.manifest.BuildID, ix.manifest.EmbeddingModel).Set(1)
}
