package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
)

// Backend is what the HTTP layer needs from the verification pipeline.
type Backend interface {
	Upload(ctx context.Context, customerID string, docType domain.DocumentType, name string, data []byte) (domain.Document, error)
	Run(ctx context.Context, rc domain.RunContext) (*pipeline.Result, error)
	Resubmit(ctx context.Context, rc domain.RunContext, data []byte) (*pipeline.Result, error)
	Verifications(ctx context.Context, documentID string) ([]domain.VerificationRecord, error)
	Extraction(ctx context.Context, documentID string) (domain.ExtractionOutcome, error)
	KycStatus(ctx context.Context, customerID string) (domain.KycStatus, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	backend     Backend
	version     string
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	Version     string

	// Rate limiting is off when RequestsPerMinute is zero.
	RequestsPerMinute int
	Burst             int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type UploadResponse struct {
	Document domain.Document `json:"document"`
}

type VerifyResponse struct {
	Document     domain.Document           `json:"document"`
	Verification domain.VerificationRecord `json:"verification"`
	Kyc          domain.KycStatus          `json:"kyc"`
	Extraction   domain.ExtractionOutcome  `json:"extraction"`
	Processing   ProcessingTimes           `json:"processing"`
}

type ProcessingTimes struct {
	DecodeMs     float64 `json:"decode_ms"`
	ExtractionMs float64 `json:"extraction_ms"`
	FallbackMs   float64 `json:"fallback_ms"`
	ValidationMs float64 `json:"validation_ms"`
	TotalMs      float64 `json:"total_ms"`
}

type VerificationsResponse struct {
	DocumentID    string                      `json:"document_id"`
	Verifications []domain.VerificationRecord `json:"verifications"`
	Count         int                         `json:"count"`
}

// NewServer creates a server over a backend.
func NewServer(config Config, backend Backend) *Server {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 10
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 60
	}
	s := &Server{
		backend:     backend,
		version:     config.Version,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeout:     time.Duration(config.TimeoutSec) * time.Second,
	}
	if config.RequestsPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(config.RequestsPerMinute, config.Burst, config.MaxRequestsPerDay, config.MaxDataPerDay)
	}
	return s
}

// Router configures the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(chimiddleware.Timeout(s.timeout))

		r.Post("/customers/{customerID}/documents", s.uploadHandler)
		r.Get("/customers/{customerID}/kyc", s.kycHandler)

		r.Post("/documents/{documentID}/verify", s.verifyHandler)
		r.Post("/documents/{documentID}/resubmit", s.resubmitHandler)
		r.Get("/documents/{documentID}/verifications", s.verificationsHandler)
		r.Get("/documents/{documentID}/extraction", s.extractionHandler)
	})
	return r
}
