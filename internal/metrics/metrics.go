package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MeshRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "currents_mesh_requests_total",
		Help: "Total number of /api/mesh requests",
	})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "currents_request_duration_ms",
		Help:    "Mesh request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	})
	NodesReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "currents_nodes_returned",
		Help:    "Nodes returned per mesh query",
		Buckets: []float64{100, 1000, 10000, 50000, 100000, 250000, 500000},
	})
	TrianglesReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "currents_triangles_returned",
		Help:    "Triangles returned per mesh query",
		Buckets: []float64{100, 1000, 10000, 50000, 100000, 500000, 1000000},
	})
	EmptyResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "currents_empty_results_total",
		Help: "Total bounding-box queries matching zero nodes",
	})
	TooLargeResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "currents_too_large_results_total",
		Help: "Total bounding-box queries rejected for exceeding the node ceiling",
	})
	SynthesisDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "currents_synthesis_duration_ms",
		Help:    "Harmonic synthesis duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	StoreLoadDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "currents_store_load_duration_ms",
		Help:    "Sorted-mesh load duration in milliseconds",
		Buckets: []float64{100, 500, 1000, 5000, 10000, 30000, 60000},
	})
	ChunkReadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "currents_chunk_reads_total",
		Help: "Total chunk objects read from the mesh bucket",
	})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "currents_redis_hits_total",
		Help: "Total redis response-cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "currents_redis_misses_total",
		Help: "Total redis response-cache misses",
	})
)

func init() {
	prometheus.MustRegister(MeshRequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(NodesReturned)
	prometheus.MustRegister(TrianglesReturned)
	prometheus.MustRegister(EmptyResultsTotal)
	prometheus.MustRegister(TooLargeResultsTotal)
	prometheus.MustRegister(SynthesisDurationMs)
	prometheus.MustRegister(StoreLoadDurationMs)
	prometheus.MustRegister(ChunkReadsTotal)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
}

// Handler exposes the registered collectors for Prometheus scraping; mounted
// at /metrics by the main entrypoint.
func Handler() http.Handler { return promhttp.Handler() }
