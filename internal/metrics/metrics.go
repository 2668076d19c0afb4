// Package metrics holds the Prometheus collectors of the query service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polyindex_queries_total",
		Help: "Query batches answered, by kind",
	}, []string{"kind"})
	PointsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polyindex_query_points_total",
		Help: "Query points processed",
	})
	QueryErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polyindex_query_errors_total",
		Help: "Rejected or failed query batches",
	})
	QueryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyindex_query_duration_ms",
		Help:    "Query batch duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})
	TreeBuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polyindex_tree_builds_total",
		Help: "Trees built from stored polygon sets",
	})
	TreeEdges = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polyindex_tree_edges",
		Help: "Edges held by each cached tree",
	}, []string{"set"})
)

func init() {
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(PointsTotal)
	prometheus.MustRegister(QueryErrorsTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(TreeBuildsTotal)
	prometheus.MustRegister(TreeEdges)
}

// Handler exposes the registered collectors for scraping
func Handler() http.Handler { return promhttp.Handler() }
