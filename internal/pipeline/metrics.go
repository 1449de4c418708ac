package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycscan_documents_processed_total",
			Help: "Documents verified, by document type and verification status",
		},
		[]string{"document_type", "status"},
	)

	fallbackPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycscan_fallback_passes_total",
			Help: "Relaxed extraction passes, by document type",
		},
		[]string{"document_type"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kycscan_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"stage"},
	)

	verificationScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kycscan_verification_score",
			Help:    "Distribution of document verification scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"document_type"},
	)
)
