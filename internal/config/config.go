// Package config loads the backup integrity configuration from a yaml
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	LogLevel    string           `yaml:"log_level" env:"LOG_LEVEL"`
	ScratchDir  string           `yaml:"scratch_dir" env:"SCRATCH_DIR"` // empty means os.TempDir
	MetricsAddr string           `yaml:"metrics_addr" env:"METRICS_ADDR"` // empty disables the admin listener
	Encryption  EncryptionConfig `yaml:"encryption"`
	Storage     StorageConfig    `yaml:"storage"`
	Store       StoreConfig      `yaml:"store"`
	Cache       CacheConfig      `yaml:"cache"`
	Audit       AuditConfig      `yaml:"audit"`
	Tracing     TracingConfig    `yaml:"tracing"`
}

// EncryptionConfig holds the backup encryption secret. An absent
// secret disables decryption; encrypted artifacts then fail
// verification with an explicit message instead of a hash mismatch.
type EncryptionConfig struct {
	Key     string `yaml:"key" env:"BACKUP_ENCRYPTION_KEY"`
	KeyFile string `yaml:"key_file" env:"BACKUP_ENCRYPTION_KEY_FILE"`
}

// StorageConfig selects and configures the artifact storage backend.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"STORAGE_BACKEND"` // s3, gcs or disk

	Endpoint     string `yaml:"endpoint" env:"STORAGE_ENDPOINT"`
	Region       string `yaml:"region" env:"STORAGE_REGION"`
	AccessKey    string `yaml:"access_key" env:"STORAGE_ACCESS_KEY"`
	SecretKey    string `yaml:"secret_key" env:"STORAGE_SECRET_KEY"`
	Bucket       string `yaml:"bucket" env:"STORAGE_BUCKET"`
	UsePathStyle bool   `yaml:"use_path_style" env:"STORAGE_USE_PATH_STYLE"`

	Root string `yaml:"root" env:"STORAGE_ROOT"` // disk backend only
}

// StoreConfig holds the metadata store location.
type StoreConfig struct {
	Path     string `yaml:"path" env:"STORE_PATH"`
	InMemory bool   `yaml:"in_memory" env:"STORE_IN_MEMORY"`
}

// CacheConfig holds the listing cache settings used by quick checks.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"CACHE_ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"CACHE_TTL"`
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled" env:"AUDIT_ENABLED"`
	MaxEvents int  `yaml:"max_events" env:"AUDIT_MAX_EVENTS"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	ServiceName    string  `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
	ServiceVersion string  `yaml:"service_version" env:"TRACING_SERVICE_VERSION"`
	Exporter       string  `yaml:"exporter" env:"TRACING_EXPORTER"` // stdout or otlp
	OTLPEndpoint   string  `yaml:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	SamplingRatio  float64 `yaml:"sampling_ratio" env:"TRACING_SAMPLING_RATIO"`
}

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: "disk",
			Region:  "us-east-1",
		},
		Store: StoreConfig{
			Path: "kanbu-meta",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:   true,
			MaxEvents: 10000,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "backup-integrity",
			ServiceVersion: "dev",
			Exporter:       "stdout",
			SamplingRatio:  1.0,
		},
	}

	// Load from file if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	// An on-disk secret wins over the inline one when both are set
	if config.Encryption.KeyFile != "" {
		keyData, err := os.ReadFile(config.Encryption.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read encryption key file: %w", err)
		}
		config.Encryption.Key = strings.TrimSpace(string(keyData))
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("SCRATCH_DIR"); v != "" {
		config.ScratchDir = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		config.MetricsAddr = v
	}
	if v := os.Getenv("BACKUP_ENCRYPTION_KEY"); v != "" {
		config.Encryption.Key = v
	}
	if v := os.Getenv("BACKUP_ENCRYPTION_KEY_FILE"); v != "" {
		config.Encryption.KeyFile = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("STORAGE_ENDPOINT"); v != "" {
		config.Storage.Endpoint = v
	}
	if v := os.Getenv("STORAGE_REGION"); v != "" {
		config.Storage.Region = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY"); v != "" {
		config.Storage.AccessKey = v
	}
	if v := os.Getenv("STORAGE_SECRET_KEY"); v != "" {
		config.Storage.SecretKey = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		config.Storage.Bucket = v
	}
	if v := os.Getenv("STORAGE_USE_PATH_STYLE"); v != "" {
		config.Storage.UsePathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("STORAGE_ROOT"); v != "" {
		config.Storage.Root = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("STORE_IN_MEMORY"); v != "" {
		config.Store.InMemory = v == "true" || v == "1"
	}
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		config.Cache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Cache.TTL = d
		}
	}
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUDIT_MAX_EVENTS"); v != "" {
		if maxEvents, err := strconv.Atoi(v); err == nil && maxEvents > 0 {
			config.Audit.MaxEvents = maxEvents
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_SERVICE_NAME"); v != "" {
		config.Tracing.ServiceName = v
	}
	if v := os.Getenv("TRACING_SERVICE_VERSION"); v != "" {
		config.Tracing.ServiceVersion = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("TRACING_SAMPLING_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0.0 && ratio <= 1.0 {
			config.Tracing.SamplingRatio = ratio
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
		}
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return fmt.Errorf("storage.access_key and storage.secret_key are required for the s3 backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case "disk":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for the disk backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s (must be s3, gcs, or disk)", c.Storage.Backend)
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name is required when tracing is enabled")
		}
		validExporters := map[string]bool{
			"stdout": true,
			"otlp":   true,
		}
		if !validExporters[c.Tracing.Exporter] {
			return fmt.Errorf("invalid tracing.exporter: %s (must be stdout or otlp)", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0.0 || c.Tracing.SamplingRatio > 1.0 {
			return fmt.Errorf("tracing.sampling_ratio must be between 0.0 and 1.0")
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is otlp")
		}
	}

	return nil
}
