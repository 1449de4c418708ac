package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "kycscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "KYCSCAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that cobra flag
// bindings apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on a specific viper instance.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	config, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file in the search paths is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps KYCSCAN_SERVER_PORT to server.port and so on.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that environment variables can
// override values absent from the file.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("log_format", d.LogFormat)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("profiles_file", d.ProfilesFile)

	l.v.SetDefault("engine.url", d.Engine.URL)
	l.v.SetDefault("engine.language", d.Engine.Language)
	l.v.SetDefault("engine.timeout_ms", d.Engine.TimeoutMs)
	l.v.SetDefault("engine.breaker_min_requests", d.Engine.BreakerMinRequests)
	l.v.SetDefault("engine.breaker_failure_ratio", d.Engine.BreakerFailureRatio)
	l.v.SetDefault("engine.breaker_open_timeout_sec", d.Engine.BreakerOpenTimeoutSec)
	l.v.SetDefault("engine.breaker_half_open_max_calls", d.Engine.BreakerHalfOpenMaxCalls)

	l.v.SetDefault("preprocess.contrast_percent", d.Preprocess.ContrastPercent)
	l.v.SetDefault("preprocess.denoise_sigma", d.Preprocess.DenoiseSigma)
	l.v.SetDefault("preprocess.sharpen_sigma", d.Preprocess.SharpenSigma)
	l.v.SetDefault("preprocess.adaptive_window", d.Preprocess.AdaptiveWindow)
	l.v.SetDefault("preprocess.adaptive_offset", d.Preprocess.AdaptiveOffset)
	l.v.SetDefault("preprocess.roi_padding", d.Preprocess.ROIPadding)
	l.v.SetDefault("preprocess.max_dimension", d.Preprocess.MaxDimension)

	l.v.SetDefault("extraction.confidence_weight", d.Extraction.ConfidenceWeight)
	l.v.SetDefault("extraction.strength_weight", d.Extraction.StrengthWeight)
	l.v.SetDefault("extraction.outside_zone_bias", d.Extraction.OutsideZoneBias)
	l.v.SetDefault("extraction.exclusion_penalty", d.Extraction.ExclusionPenalty)
	l.v.SetDefault("extraction.unlabeled_penalty", d.Extraction.UnlabeledPenalty)
	l.v.SetDefault("extraction.partial_penalty", d.Extraction.PartialPenalty)
	l.v.SetDefault("extraction.concurrent_variants", d.Extraction.ConcurrentVariants)

	l.v.SetDefault("store.driver", d.Store.Driver)
	l.v.SetDefault("store.dsn", d.Store.DSN)
	l.v.SetDefault("store.max_open_conns", d.Store.MaxOpenConns)
	l.v.SetDefault("store.auto_migrate", d.Store.AutoMigrate)

	l.v.SetDefault("files.root", d.Files.Root)

	l.v.SetDefault("audit.sink", d.Audit.Sink)
	l.v.SetDefault("audit.nats_url", d.Audit.NATSURL)
	l.v.SetDefault("audit.nats_subject", d.Audit.NATSSubject)

	l.v.SetDefault("kyc.required_documents", d.KYC.RequiredDocuments)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	l.v.SetDefault("server.burst", d.Server.Burst)
	l.v.SetDefault("server.max_requests_per_day", d.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day", d.Server.MaxDataPerDay)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.format", d.Batch.Format)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// GenerateDefaultConfigFile writes a configuration file holding the defaults.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWith(viper.New())
	loader.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.v.WriteConfigAs(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "kycscan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kycscan"))
	}
	return append(paths, "/etc/kycscan")
}
