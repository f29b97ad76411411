package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Fallbacks          *prometheus.CounterVec
	DocumentsProcessed *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	SearchResults      prometheus.Histogram
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metric set, registering it on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			Fallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragdesk_fallbacks_total",
					Help: "Number of times a retrieval stage substituted its fallback value",
				},
				[]string{"stage"},
			),
			DocumentsProcessed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragdesk_documents_processed_total",
					Help: "Uploaded documents by final processing status",
				},
				[]string{"status"},
			),
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ragdesk_stage_duration_seconds",
					Help:    "Duration of retrieval pipeline stages",
					Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
				},
				[]string{"stage"},
			),
			SearchResults: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ragdesk_search_results",
					Help:    "Number of results returned per search",
					Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
				},
			),
		}
	})
	return instance
}

func Fallback(stage string, n int) {
	if n <= 0 {
		return
	}
	Get().Fallbacks.WithLabelValues(stage).Add(float64(n))
}

func ObserveStage(stage string, started time.Time) {
	Get().StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func DocumentProcessed(status string) {
	Get().DocumentsProcessed.WithLabelValues(status).Inc()
}

func SearchReturned(n int) {
	Get().SearchResults.Observe(float64(n))
}
