// Package config loads and validates the guard service configuration
// from an optional YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/utils"
)

// AppConfig represents the entire application configuration.
type AppConfig struct {
	App     AppSettings     `yaml:"app"`
	Server  ServerSettings  `yaml:"server"`
	Guard   GuardSettings   `yaml:"guard"`
	Logging LoggingSettings `yaml:"logging"`
}

// AppSettings contains general application settings.
type AppSettings struct {
	Environment string `yaml:"environment" env:"APP_ENV"`
	Name        string `yaml:"name" env:"APP_NAME"`
	Version     string `yaml:"version" env:"APP_VERSION"`
}

// ServerSettings contains HTTP server settings.
type ServerSettings struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// GuardSettings contains the guard pipeline configuration.
type GuardSettings struct {
	// GeoDBPath is the GeoLite2-City database file or its directory.
	GeoDBPath string `yaml:"geodb_path" env:"GUARD_GEODB_PATH"`

	// StoragePath is the directory holding the persisted rule store.
	StoragePath string `yaml:"storage_path" env:"GUARD_STORAGE_PATH"`

	// AccessLogDir is the directory receiving the daily access logs.
	AccessLogDir string `yaml:"access_log_dir" env:"GUARD_ACCESS_LOG_DIR"`

	// SecretToken authenticates administrative rule mutations.
	SecretToken string `yaml:"secret_token" env:"GUARD_SECRET_TOKEN"`

	// IPSource selects the client IP resolution policy.
	IPSource string `yaml:"ip_source" env:"GUARD_IP_SOURCE"`

	// GeoCacheSize bounds the geo lookup LRU cache.
	GeoCacheSize int `yaml:"geo_cache_size" env:"GUARD_GEO_CACHE_SIZE"`

	// PurgeInterval is the cadence of the expired-rule sweep.
	PurgeInterval time.Duration `yaml:"purge_interval" env:"GUARD_PURGE_INTERVAL"`
}

// LoggingSettings contains operational logging configuration.
type LoggingSettings struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`

	// File, when set, routes the operational log to a size-rotated file
	// instead of stdout. The access log is configured separately.
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
}

// ServerAddress returns the complete listen address.
func (ss *ServerSettings) ServerAddress() string {
	return fmt.Sprintf("%s:%d", ss.Host, ss.Port)
}

// IsDevelopment checks if the application is running in development mode.
func (as *AppSettings) IsDevelopment() bool {
	return strings.ToLower(as.Environment) == constants.EnvDevelopment
}

// IsProduction checks if the application is running in production mode.
func (as *AppSettings) IsProduction() bool {
	return strings.ToLower(as.Environment) == constants.EnvProduction
}

// Load builds the configuration: defaults, then the YAML file if it
// exists, then environment variable overrides, then validation.
func Load(configPath string) (*AppConfig, error) {
	config := &AppConfig{}
	setDefaults(config)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
			log.Info().Str("path", configPath).Msg("Loaded configuration file")
		}
	}

	if err := LoadEnv(config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults fills in defaults for everything that has one. Paths and
// the secret token have no safe default and must be provided.
func setDefaults(config *AppConfig) {
	config.App.Environment = constants.EnvProduction
	config.App.Name = constants.AppName
	config.App.Version = "dev"

	config.Server.Host = constants.DefaultServerHost
	config.Server.Port = constants.DefaultServerPort
	config.Server.ReadTimeout = constants.DefaultReadTimeout
	config.Server.WriteTimeout = constants.DefaultWriteTimeout
	config.Server.ShutdownTimeout = constants.DefaultShutdownTimeout

	config.Guard.IPSource = string(utils.IPSourceRemoteAddr)
	config.Guard.GeoCacheSize = constants.DefaultGeoCacheSize
	config.Guard.PurgeInterval = constants.DefaultPurgeInterval

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.MaxSizeMB = 100
	config.Logging.MaxBackups = 5
}

// validateConfig rejects configurations the service cannot start with.
// Refusing to start beats serving in a half-functional state.
func validateConfig(config *AppConfig) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Guard.GeoDBPath == "" {
		return fmt.Errorf("GUARD_GEODB_PATH is required")
	}
	if config.Guard.StoragePath == "" {
		return fmt.Errorf("GUARD_STORAGE_PATH is required")
	}
	if config.Guard.AccessLogDir == "" {
		return fmt.Errorf("GUARD_ACCESS_LOG_DIR is required")
	}
	if config.Guard.SecretToken == "" {
		return fmt.Errorf("GUARD_SECRET_TOKEN is required")
	}
	if !utils.IPSource(config.Guard.IPSource).Valid() {
		return fmt.Errorf("invalid GUARD_IP_SOURCE: %q", config.Guard.IPSource)
	}
	if config.Guard.PurgeInterval <= 0 {
		return fmt.Errorf("invalid GUARD_PURGE_INTERVAL: %s", config.Guard.PurgeInterval)
	}
	return nil
}
