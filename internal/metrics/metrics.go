// Package metrics holds the Prometheus collectors for Semantic Scholar
// requests and tree builds. All Record methods are safe on a nil *Registry,
// so instrumented components work without metrics configured.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry wraps a private Prometheus registry and its collectors.
type Registry struct {
	registry *prometheus.Registry

	S2RequestsTotal   *prometheus.CounterVec
	S2RetriesTotal    *prometheus.CounterVec
	S2PapersTotal     *prometheus.CounterVec
	S2RequestDuration prometheus.Histogram

	TreePapersAdded *prometheus.CounterVec
	TreeFailedIDs   prometheus.Counter
	TreeBuildsTotal *prometheus.CounterVec
}

// NewRegistry creates a registry with all collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,

		S2RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptree_s2_requests_total",
				Help: "Outbound Semantic Scholar batch requests by result status",
			},
			[]string{"status"},
		),
		S2RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptree_s2_retries_total",
				Help: "Sub-batch retries by reason",
			},
			[]string{"reason"},
		),
		S2PapersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptree_s2_papers_total",
				Help: "Identifiers resolved by the batch endpoint, by result",
			},
			[]string{"result"},
		),
		S2RequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ptree_s2_request_duration_seconds",
				Help:    "Duration of batch requests",
				Buckets: prometheus.DefBuckets,
			},
		),

		TreePapersAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptree_tree_papers_added_total",
				Help: "Papers added to citation trees by depth",
			},
			[]string{"depth"},
		),
		TreeFailedIDs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ptree_tree_failed_ids_total",
				Help: "Identifiers pruned from trees after fetch failures",
			},
		),
		TreeBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptree_tree_builds_total",
				Help: "Tree builds by outcome",
			},
			[]string{"status"},
		),
	}
}

// Gatherer exposes the underlying registry for scraping or dumping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile dumps the registry in the Prometheus text format, for the
// node_exporter textfile collector or offline inspection.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

// RecordS2Request records one outbound batch request.
func (r *Registry) RecordS2Request(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.S2RequestsTotal.WithLabelValues(status).Inc()
	r.S2RequestDuration.Observe(duration.Seconds())
}

// RecordS2Retry records a retry of a sub-batch.
func (r *Registry) RecordS2Retry(reason string) {
	if r == nil {
		return
	}
	r.S2RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordS2Papers records how many requested identifiers were found or absent.
func (r *Registry) RecordS2Papers(found, absent int) {
	if r == nil {
		return
	}
	r.S2PapersTotal.WithLabelValues("found").Add(float64(found))
	r.S2PapersTotal.WithLabelValues("absent").Add(float64(absent))
}

// RecordLevel records the outcome of one traversal level.
func (r *Registry) RecordLevel(depth, added, failed int) {
	if r == nil {
		return
	}
	r.TreePapersAdded.WithLabelValues(strconv.Itoa(depth)).Add(float64(added))
	r.TreeFailedIDs.Add(float64(failed))
}

// RecordBuild records a finished build.
func (r *Registry) RecordBuild(status string) {
	if r == nil {
		return
	}
	r.TreeBuildsTotal.WithLabelValues(status).Inc()
}
