package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the image service
type Metrics struct {
	ImagesProcessed  *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	WebsocketFrames  *prometheus.CounterVec
	OutfitsComposed  prometheus.Counter
	RateLimited      prometheus.Counter
}

// NewMetrics registers the service metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ImagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clothing_images_processed_total",
			Help: "Number of images run through the processing pipeline, by outcome.",
		}, []string{"outcome"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clothing_pipeline_duration_seconds",
			Help:    "Wall time of a full pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		WebsocketFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clothing_websocket_frames_total",
			Help: "Number of frames handled on /ws/rmbg, by outcome.",
		}, []string{"outcome"}),
		OutfitsComposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "clothing_outfits_composed_total",
			Help: "Number of outfit images generated.",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "clothing_requests_rate_limited_total",
			Help: "Number of requests rejected by the per-client rate limiter.",
		}),
	}
}
