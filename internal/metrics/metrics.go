package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector exposes Prometheus metrics for the ingestion pipeline.
type PipelineCollector struct {
	registry *prometheus.Registry

	articlesFetched    prometheus.Counter
	articlesRejected   *prometheus.CounterVec
	duplicatesSkipped  *prometheus.CounterVec
	articlesPersisted  prometheus.Counter
	clusterAssignments *prometheus.CounterVec
	providerFailures   *prometheus.CounterVec
	narrativesWritten  prometheus.Counter
}

// NewPipelineCollector constructs a collector with default counters.
func NewPipelineCollector() (*PipelineCollector, error) {
	registry := prometheus.NewRegistry()

	articlesFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storywire",
		Subsystem: "pipeline",
		Name:      "articles_fetched_total",
		Help:      "Raw articles returned by content-feed providers.",
	})

	articlesRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storywire",
		Subsystem: "pipeline",
		Name:      "articles_rejected_total",
		Help:      "Articles rejected by the quality gate, by reason.",
	}, []string{"reason"})

	duplicatesSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storywire",
		Subsystem: "pipeline",
		Name:      "duplicates_skipped_total",
		Help:      "Articles dropped as duplicates, by detection stage.",
	}, []string{"stage"})

	articlesPersisted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storywire",
		Subsystem: "pipeline",
		Name:      "articles_persisted_total",
		Help:      "Articles successfully written to the store.",
	})

	clusterAssignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storywire",
		Subsystem: "clustering",
		Name:      "assignments_total",
		Help:      "Cluster assignments, by matching tier.",
	}, []string{"tier"})

	providerFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storywire",
		Subsystem: "providers",
		Name:      "failures_total",
		Help:      "Exhausted or fail-fast provider calls, by provider.",
	}, []string{"provider"})

	narrativesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storywire",
		Subsystem: "clustering",
		Name:      "narratives_written_total",
		Help:      "Narratives created or updated by the synthesis trigger.",
	})

	collectors := []prometheus.Collector{
		articlesFetched,
		articlesRejected,
		duplicatesSkipped,
		articlesPersisted,
		clusterAssignments,
		providerFailures,
		narrativesWritten,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &PipelineCollector{
		registry:           registry,
		articlesFetched:    articlesFetched,
		articlesRejected:   articlesRejected,
		duplicatesSkipped:  duplicatesSkipped,
		articlesPersisted:  articlesPersisted,
		clusterAssignments: clusterAssignments,
		providerFailures:   providerFailures,
		narrativesWritten:  narrativesWritten,
	}, nil
}

// ArticlesFetched records raw articles returned by a fetch.
func (c *PipelineCollector) ArticlesFetched(n int) {
	c.articlesFetched.Add(float64(n))
}

// ArticleRejected records a quality-gate rejection.
func (c *PipelineCollector) ArticleRejected(reason string) {
	c.articlesRejected.WithLabelValues(reason).Inc()
}

// DuplicateSkipped records a duplicate dropped at the given stage
// (batch, claim, store).
func (c *PipelineCollector) DuplicateSkipped(stage string) {
	c.duplicatesSkipped.WithLabelValues(stage).Inc()
}

// ArticlePersisted records a successful store write.
func (c *PipelineCollector) ArticlePersisted() {
	c.articlesPersisted.Inc()
}

// ClusterAssigned records a cluster assignment by tier (vector, metadata, new).
func (c *PipelineCollector) ClusterAssigned(tier string) {
	c.clusterAssignments.WithLabelValues(tier).Inc()
}

// ProviderFailure records an exhausted or fail-fast provider call.
func (c *PipelineCollector) ProviderFailure(provider string) {
	c.providerFailures.WithLabelValues(provider).Inc()
}

// NarrativeWritten records a narrative create/update.
func (c *PipelineCollector) NarrativeWritten() {
	c.narrativesWritten.Inc()
}

// Handler returns an HTTP handler exposing the registry.
func (c *PipelineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
