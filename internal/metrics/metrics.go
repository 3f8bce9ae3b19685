package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsDigest/internal/ports"
)

// Collector records pipeline events as Prometheus metrics.
type Collector struct {
	passes          *prometheus.CounterVec
	passDuration    prometheus.Histogram
	firesSkipped    *prometheus.CounterVec
	articlesStored  prometheus.Counter
	entriesSkipped  prometheus.Counter
	enrichmentCalls *prometheus.CounterVec
	rateLimitWaits  prometheus.Counter
	rateLimitWaited prometheus.Counter
}

var _ ports.Recorder = (*Collector)(nil)

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_passes_total",
			Help: "Ingestion passes by result (ok or error).",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdigest_pass_duration_seconds",
			Help:    "Duration of ingestion passes.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		firesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_fires_skipped_total",
			Help: "Scheduler fires that did not run a pass, by reason.",
		}, []string{"reason"}),
		articlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_articles_stored_total",
			Help: "Articles inserted into storage.",
		}),
		entriesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_entries_skipped_total",
			Help: "Feed entries dropped because no article body could be extracted.",
		}),
		enrichmentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_enrichment_calls_total",
			Help: "Enrichment calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_rate_limit_waits_total",
			Help: "Times an enrichment call waited for the request budget.",
		}),
		rateLimitWaited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_rate_limit_wait_seconds_total",
			Help: "Total time spent waiting for the request budget.",
		}),
	}

	reg.MustRegister(
		c.passes,
		c.passDuration,
		c.firesSkipped,
		c.articlesStored,
		c.entriesSkipped,
		c.enrichmentCalls,
		c.rateLimitWaits,
		c.rateLimitWaited,
	)

	return c
}

func (c *Collector) PassFinished(ok bool, duration time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.passes.WithLabelValues(result).Inc()
	c.passDuration.Observe(duration.Seconds())
}

func (c *Collector) FireSkipped(reason string) {
	c.firesSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) ArticlesStored(count int) {
	c.articlesStored.Add(float64(count))
}

func (c *Collector) EntrySkipped() {
	c.entriesSkipped.Inc()
}

func (c *Collector) EnrichmentCall(kind, outcome string) {
	c.enrichmentCalls.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RateLimitWait(d time.Duration) {
	c.rateLimitWaits.Inc()
	c.rateLimitWaited.Add(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
