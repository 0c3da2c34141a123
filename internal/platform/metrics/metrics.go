// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fhir"

// Registry is the registry every collector of this package is registered with.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	EntityMutations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entity_mutations_total",
		Help:      "Committed entity mutations by resource type and operation.",
	}, []string{"resource_type", "operation"})

	EntityRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entity_rejections_total",
		Help:      "Entity writes rejected by the schema constraint.",
	}, []string{"resource_type"})

	HistoryEntries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_entries_appended_total",
		Help:      "History entries appended inside a unit of work, by operation.",
	}, []string{"operation"})

	IndexRows = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_rows_written_total",
		Help:      "Index rows written by resource type and value type.",
	}, []string{"resource_type", "value_type"})

	IndexWarnings = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_warnings_total",
		Help:      "Values skipped during index extraction.",
	}, []string{"resource_type", "key"})

	SearchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "Latency of index searches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"resource_type", "key", "operator"})

	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// PoolStat is the subset of pgxpool.Stat exported as gauges.
type PoolStat interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
	MaxConns() int32
}

// RegisterPool exports connection pool gauges read from stat on every scrape.
func RegisterPool(reg prometheus.Registerer, stat func() PoolStat) error {
	gauge := func(name, help string, read func(PoolStat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stat())) })
	}

	for _, c := range []prometheus.Collector{
		gauge("total_conns", "Open connections.", PoolStat.TotalConns),
		gauge("idle_conns", "Idle connections.", PoolStat.IdleConns),
		gauge("acquired_conns", "Connections in use.", PoolStat.AcquiredConns),
		gauge("max_conns", "Configured connection limit.", PoolStat.MaxConns),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
