//nolint:lll
package config

import (
	"github.com/MeKo-Tech/kycscan/internal/extractor"
	"github.com/MeKo-Tech/kycscan/internal/preprocess"
)

// Config represents the complete configuration for kycscan. It covers every
// command (verify, serve, batch) and is loaded from configuration files,
// environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// ProfilesFile replaces the built-in document type profiles when set.
	ProfilesFile string `mapstructure:"profiles_file" yaml:"profiles_file" json:"profiles_file"`

	Engine     EngineConfig      `mapstructure:"engine" yaml:"engine" json:"engine"`
	Preprocess preprocess.Config `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Extraction extractor.Config  `mapstructure:"extraction" yaml:"extraction" json:"extraction"`
	Store      StoreConfig       `mapstructure:"store" yaml:"store" json:"store"`
	Files      FilesConfig       `mapstructure:"files" yaml:"files" json:"files"`
	Audit      AuditConfig       `mapstructure:"audit" yaml:"audit" json:"audit"`
	KYC        KYCConfig         `mapstructure:"kyc" yaml:"kyc" json:"kyc"`
	Server     ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Batch      BatchConfig       `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// EngineConfig points at the OCR engine and tunes its circuit breaker.
type EngineConfig struct {
	URL                     string  `mapstructure:"url" yaml:"url" json:"url"`
	Language                string  `mapstructure:"language" yaml:"language" json:"language"`
	TimeoutMs               int     `mapstructure:"timeout_ms" yaml:"timeout_ms" json:"timeout_ms"`
	BreakerMinRequests      uint32  `mapstructure:"breaker_min_requests" yaml:"breaker_min_requests" json:"breaker_min_requests"`
	BreakerFailureRatio     float64 `mapstructure:"breaker_failure_ratio" yaml:"breaker_failure_ratio" json:"breaker_failure_ratio"`
	BreakerOpenTimeoutSec   int     `mapstructure:"breaker_open_timeout_sec" yaml:"breaker_open_timeout_sec" json:"breaker_open_timeout_sec"`
	BreakerHalfOpenMaxCalls uint32  `mapstructure:"breaker_half_open_max_calls" yaml:"breaker_half_open_max_calls" json:"breaker_half_open_max_calls"`
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver" json:"driver"` // memory or postgres
	DSN          string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate"`
}

// FilesConfig locates uploaded document files.
type FilesConfig struct {
	Root string `mapstructure:"root" yaml:"root" json:"root"`
}

// AuditConfig selects where audit entries go.
type AuditConfig struct {
	Sink        string `mapstructure:"sink" yaml:"sink" json:"sink"` // log, nats or both
	NATSURL     string `mapstructure:"nats_url" yaml:"nats_url" json:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject" yaml:"nats_subject" json:"nats_subject"`
}

// KYCConfig holds the customer-level policy.
type KYCConfig struct {
	RequiredDocuments []string `mapstructure:"required_documents" yaml:"required_documents" json:"required_documents"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string `mapstructure:"host" yaml:"host" json:"host"`
	Port              int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec        int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int    `mapstructure:"burst" yaml:"burst" json:"burst"`
	MaxRequestsPerDay int    `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     string `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	Format          string `mapstructure:"format" yaml:"format" json:"format"`
	ContinueOnError bool   `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}
