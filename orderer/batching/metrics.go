package batching

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oasisprotocol/block-orderer/orderer/api"
)

var (
	orderedTxns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderer_ordered_txns",
			Help: "Number of transactions ordered",
		},
		[]string{"strategy"},
	)
	orderedBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderer_ordered_batches",
			Help: "Number of batches emitted",
		},
		[]string{"strategy"},
	)
	batchSizes = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "orderer_batch_size",
			Help: "Size of emitted batches (number of transactions)",
		},
		[]string{"strategy"},
	)
	orderingSeconds = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "orderer_ordering_seconds",
			Help: "Time spent ordering a block (seconds)",
		},
		[]string{"strategy"},
	)
	dependencyEdges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderer_dependency_edges",
			Help: "Number of dependency edges discovered",
		},
		[]string{"strategy"},
	)
	windowEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderer_window_evictions",
			Help: "Number of transactions evicted from the conflict window",
		},
		[]string{"strategy"},
	)

	ordererCollectors = []prometheus.Collector{
		orderedTxns,
		orderedBatches,
		batchSizes,
		orderingSeconds,
		dependencyEdges,
		windowEvictions,
	}

	metricsOnce sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(ordererCollectors...)
	})
}

func (o *Orderer[T]) updateMetrics(txns, batches int, stats *api.ProducerStats, elapsed time.Duration) {
	orderedTxns.WithLabelValues(o.name).Add(float64(txns))
	orderedBatches.WithLabelValues(o.name).Add(float64(batches))
	orderingSeconds.WithLabelValues(o.name).Observe(elapsed.Seconds())
	dependencyEdges.WithLabelValues(o.name).Add(float64(stats.Edges))
	windowEvictions.WithLabelValues(o.name).Add(float64(stats.Evictions))
}
