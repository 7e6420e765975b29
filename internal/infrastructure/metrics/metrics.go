// Package metrics exports refresh outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements usecase.RefreshObserver.
type Recorder struct {
	refreshed *prometheus.CounterVec
	skipped   prometheus.Counter
	failed    *prometheus.CounterVec
	stories   prometheus.Histogram
	duration  prometheus.Histogram
	gatherer  prometheus.Gatherer
}

// NewRecorder registers the refresh metrics on reg.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		refreshed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedkeep",
			Name:      "feed_refreshed_total",
			Help:      "Feeds whose stories were replaced by a refresh.",
		}, []string{"feed_id"}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "feedkeep",
			Name:      "feed_skipped_total",
			Help:      "Feed evaluations that found no newer remote document.",
		}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedkeep",
			Name:      "feed_failed_total",
			Help:      "Feed refreshes that failed, by reason.",
		}, []string{"reason"}),
		stories: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedkeep",
			Name:      "feed_stories",
			Help:      "Stories stored per refreshed feed.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedkeep",
			Name:      "feed_refresh_duration_seconds",
			Help:      "Time spent refreshing one feed.",
			Buckets:   prometheus.DefBuckets,
		}),
		gatherer: reg,
	}
}

// FeedRefreshed records a feed whose stories were replaced.
func (r *Recorder) FeedRefreshed(feedID string, stories int, took time.Duration) {
	r.refreshed.WithLabelValues(feedID).Inc()
	r.stories.Observe(float64(stories))
	r.duration.Observe(took.Seconds())
}

// FeedSkipped records a feed that was already current.
func (r *Recorder) FeedSkipped(string) {
	r.skipped.Inc()
}

// FeedFailed records a failed refresh.
func (r *Recorder) FeedFailed(_ string, reason string) {
	r.failed.WithLabelValues(reason).Inc()
}

// Handler serves the registered metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
