package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qdblocks"

// RecordsWritten counts extraction records saved to disk.
var RecordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "records_written_total",
	Help:      "Total number of query layout records written.",
})

// QueriesSkipped counts statements the recorder ignored because they are not SELECT queries.
var QueriesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "queries_skipped_total",
	Help:      "Total number of statements not recorded because they are not SELECT queries.",
})

// WalkErrors counts tables or files whose layout could not be fully read.
var WalkErrors = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "walk_errors_total",
	Help:      "Total number of storage listing failures while walking query inputs.",
})

// RunsClassified counts runs moved into the data folder, by whether they joined an existing query folder.
var RunsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "runs_classified_total",
	Help:      "Total number of benchmark runs classified into query folders.",
}, []string{"outcome"})

// NodePathsDeleted counts files and directories removed from per-node result folders.
var NodePathsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "node_paths_deleted_total",
	Help:      "Total number of paths removed while cleaning per-node result folders.",
})

// IndexedReplicas is the number of replica rows in the analysis index after the last rebuild.
var IndexedReplicas = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "indexed_replicas",
	Help:      "Number of replica rows in the analysis index.",
})

var initOnce sync.Once

// Init registers all metrics with the default Prometheus registry. Later calls are no-ops.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RecordsWritten, QueriesSkipped, WalkErrors, RunsClassified, NodePathsDeleted, IndexedReplicas)
	})
}

// WriteTextfile dumps the default registry in the node exporter textfile format.
// Batch commands call it once before exiting.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
