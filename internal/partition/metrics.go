package partition

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reasonLabel = "reason"

	reasonNoPosition = "no_position"
	reasonEmpty      = "empty"
)

var (
	partitionRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshstream_partition_runs",
		Help: "The number of partitioned surface groups.",
	})

	partitionSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshstream_partition_skipped_groups",
		Help: "Surface groups skipped because they could not be partitioned.",
	}, []string{
		reasonLabel,
	})

	partitionLeaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshstream_partition_leaves",
		Help: "The number of partitions emitted.",
	})

	partitionSharedTriangles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshstream_partition_shared_triangles",
		Help: "Triangles duplicated into neighbouring partitions.",
	})

	partitionLeafTriangles = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meshstream_partition_leaf_triangles",
		Help:    "Owned plus shared triangles per emitted partition.",
		Buckets: prometheus.ExponentialBuckets(16, 4, 8),
	})

	partitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "meshstream_partition_latency",
		Help: "The time to partition one node.",
	})
)

func instrumentSkipped(reason string) {
	partitionSkipped.With(prometheus.Labels{
		reasonLabel: reason,
	}).Inc()
}

func instrumentLeaf(n *OctreeNode) {
	partitionLeaves.Inc()
	partitionSharedTriangles.Add(float64(len(n.SharedTriangles)))
	partitionLeafTriangles.Observe(float64(n.TriangleCount()))
}

func instrumentLatency(start time.Time) {
	partitionLatency.Observe(time.Since(start).Seconds())
}
