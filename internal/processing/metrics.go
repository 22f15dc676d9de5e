// internal/processing/metrics.go
package processing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File outcomes reported by librarr_files_processed_total.
const (
	outcomeImported  = "imported"
	outcomeDuplicate = "duplicate"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

var (
	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarr_files_processed_total",
		Help: "Files handled by the processing pipeline by outcome",
	}, []string{"outcome"})

	downloadsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarr_downloads_processed_total",
		Help: "Processing runs by final download status",
	}, []string{"status"})

	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "librarr_processing_duration_seconds",
		Help:    "Time spent processing one download",
		Buckets: prometheus.DefBuckets,
	})
)
