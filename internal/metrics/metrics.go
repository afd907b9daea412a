// Package metrics exposes the publisher's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the publisher's collectors. One instance is shared by the
// dispatcher, the orchestrator, and the HTTP layer.
type Metrics struct {
	PublishAttempts  *prometheus.CounterVec
	PublishDuration  *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	GenerationJobs   *prometheus.CounterVec
	MediaDownloads   prometheus.Counter
	MediaUploadBytes prometheus.Counter
}

// New registers the publisher collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PublishAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_publish_attempts_total",
			Help: "Publish attempts by destination and outcome",
		}, []string{"destination", "status"}),
		PublishDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "publisher_publish_duration_seconds",
			Help:    "End-to-end publish duration per destination",
			Buckets: prometheus.DefBuckets,
		}, []string{"destination"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "publisher_breaker_state",
			Help: "Circuit breaker state per destination (0 closed, 1 open, 2 half-open)",
		}, []string{"destination"}),
		GenerationJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_generation_jobs_total",
			Help: "Generation jobs by model and outcome",
		}, []string{"model", "status"}),
		MediaDownloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "publisher_media_downloads_total",
			Help: "Media files downloaded for reupload",
		}),
		MediaUploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "publisher_media_upload_bytes_total",
			Help: "Bytes reuploaded to destinations",
		}),
	}
}
