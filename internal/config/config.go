package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/extractor"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
	"github.com/MeKo-Tech/kycscan/internal/preprocess"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/server"
)

// Store drivers and audit sinks.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	SinkLog  = "log"
	SinkNATS = "nats"
	SinkBoth = "both"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		LogFormat:  "json",
		Preprocess: preprocess.DefaultConfig(),
		Extraction: extractor.DefaultConfig(),
		Engine: EngineConfig{
			URL:                     "http://localhost:8080",
			TimeoutMs:               int(recognizer.DefaultTimeout / time.Millisecond),
			BreakerMinRequests:      5,
			BreakerFailureRatio:     0.6,
			BreakerOpenTimeoutSec:   30,
			BreakerHalfOpenMaxCalls: 1,
		},
		Store: StoreConfig{
			Driver:       DriverMemory,
			MaxOpenConns: 10,
			AutoMigrate:  true,
		},
		Files: FilesConfig{Root: "./data/documents"},
		Audit: AuditConfig{
			Sink:        SinkLog,
			NATSSubject: "kyc.audit",
		},
		KYC: KYCConfig{RequiredDocuments: []string{string(domain.DocumentIDProof), string(domain.DocumentAddressProof)}},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9090,
			CORSOrigin:      "",
			MaxUploadMB:     10,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
			MaxDataPerDay:   "",
		},
		Batch: BatchConfig{
			Workers: 4,
			Format:  "text",
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	validLogFormats := []string{"json", "text"}
	if c.LogFormat != "" && !contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))
	}

	if c.Engine.TimeoutMs <= 0 {
		return fmt.Errorf("invalid engine timeout: %d (must be positive)", c.Engine.TimeoutMs)
	}
	if err := validateThreshold(c.Engine.BreakerFailureRatio, "engine.breaker_failure_ratio"); err != nil {
		return err
	}
	if c.Extraction.ConfidenceWeight < 0 || c.Extraction.StrengthWeight < 0 {
		return fmt.Errorf("invalid ranking weights: confidence=%.2f strength=%.2f (must not be negative)",
			c.Extraction.ConfidenceWeight, c.Extraction.StrengthWeight)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be one of: %s, %s)", c.Store.Driver, DriverMemory, DriverPostgres)
	}
	if c.Files.Root == "" {
		return fmt.Errorf("files.root is required")
	}

	switch c.Audit.Sink {
	case SinkLog:
	case SinkNATS, SinkBoth:
		if c.Audit.NATSURL == "" || c.Audit.NATSSubject == "" {
			return fmt.Errorf("audit.nats_url and audit.nats_subject are required for the %s sink", c.Audit.Sink)
		}
	default:
		return fmt.Errorf("invalid audit sink: %s (must be one of: %s, %s, %s)", c.Audit.Sink, SinkLog, SinkNATS, SinkBoth)
	}

	if _, err := c.RequiredCategories(); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.RequestsPerMinute < 0 {
		return fmt.Errorf("invalid requests per minute: %d (must not be negative)", c.Server.RequestsPerMinute)
	}
	if _, err := ParseByteSize(c.Server.MaxDataPerDay); err != nil {
		return fmt.Errorf("invalid server.max_data_per_day: %w", err)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	validFormats := []string{"text", "json", "csv"}
	if c.Batch.Format != "" && !contains(validFormats, c.Batch.Format) {
		return fmt.Errorf("invalid batch format: %s (must be one of: %s)", c.Batch.Format, strings.Join(validFormats, ", "))
	}
	return nil
}

// RequiredCategories parses kyc.required_documents into document types.
func (c *Config) RequiredCategories() ([]domain.DocumentType, error) {
	out := make([]domain.DocumentType, 0, len(c.KYC.RequiredDocuments))
	for _, s := range c.KYC.RequiredDocuments {
		dt, err := domain.ParseDocumentType(s)
		if err != nil {
			return nil, fmt.Errorf("invalid kyc.required_documents entry: %w", err)
		}
		out = append(out, dt)
	}
	return out, nil
}

// Profiles returns the configured document type profiles.
func (c *Config) Profiles() (*doctype.Registry, error) {
	if c.ProfilesFile == "" {
		return doctype.Default(), nil
	}
	return doctype.LoadFile(c.ProfilesFile)
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Preprocess = c.Preprocess
	cfg.Extraction = c.Extraction
	cfg.Recognition.Timeout = time.Duration(c.Engine.TimeoutMs) * time.Millisecond
	if c.Batch.Workers > 0 {
		cfg.Workers = c.Batch.Workers
	}
	if req, err := c.RequiredCategories(); err == nil {
		cfg.RequiredCategories = req
	}
	return cfg
}

// ToEngineConfig converts the config to the HTTP engine client settings.
func (c *Config) ToEngineConfig() recognizer.HTTPEngineConfig {
	return recognizer.HTTPEngineConfig{
		URL:                     c.Engine.URL,
		Language:                c.Engine.Language,
		BreakerMinRequests:      c.Engine.BreakerMinRequests,
		BreakerFailureRatio:     c.Engine.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(c.Engine.BreakerOpenTimeoutSec) * time.Second,
		BreakerHalfOpenMaxCalls: c.Engine.BreakerHalfOpenMaxCalls,
	}
}

// ToServerConfig converts the config to the HTTP server settings.
func (c *Config) ToServerConfig(version string) server.Config {
	maxData, _ := ParseByteSize(c.Server.MaxDataPerDay)
	return server.Config{
		Host:              c.Server.Host,
		Port:              c.Server.Port,
		CORSOrigin:        c.Server.CORSOrigin,
		MaxUploadMB:       int64(c.Server.MaxUploadMB),
		TimeoutSec:        c.Server.TimeoutSec,
		Version:           version,
		RequestsPerMinute: c.Server.RequestsPerMinute,
		Burst:             c.Server.Burst,
		MaxRequestsPerDay: c.Server.MaxRequestsPerDay,
		MaxDataPerDay:     maxData,
	}
}

// Helper functions

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// ParseByteSize parses sizes like "512MB" or "1GB". Empty means zero.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}
	units := []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in size: %s", s)
		}
		return int64(n * float64(u.mult)), nil
	}
	return 0, fmt.Errorf("size must end with one of: GB, MB, KB, B")
}
