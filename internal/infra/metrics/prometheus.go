package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txt2anything_extractions_total",
		Help: "Total number of extraction jobs processed, by status",
	}, []string{"status"})

	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "txt2anything_extraction_duration_seconds",
		Help:    "Duration of the extraction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txt2anything_frames_sampled_total",
		Help: "Total number of video frames sampled across all jobs",
	})

	OutlineLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txt2anything_outline_lines_total",
		Help: "Total number of outline lines produced across all jobs",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txt2anything_active_workers",
		Help: "Number of currently active workers processing extraction jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txt2anything_retry_total",
		Help: "Total number of extraction retries",
	}, []string{"attempt"})
)
