package recognizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
)

var (
	recognitionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycscan_recognition_calls_total",
			Help: "OCR engine calls by outcome",
		},
		[]string{"outcome"},
	)

	recognitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kycscan_recognition_duration_seconds",
			Help:    "Time spent in a single OCR engine call",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kycscan_ocr_engine_breaker_state",
			Help: "OCR engine circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"engine"},
	)
)
